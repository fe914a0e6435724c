package elasticity

import (
	"math"

	"github.com/selivandex/pricing-engine/pkg/models"
)

// Regression is a log-log fit of occupancy on price
type Regression struct {
	Slope        float64 // elasticity
	RSquared     float64
	Points       int
	MinPrice     float64
	MaxPrice     float64
	OptimalPrice float64 // observed price with the best price x occupancy
}

// Fit regresses ln(occupancy) on ln(price). Points with a non-positive
// price or occupancy are skipped. ok is false below the minimum sample
// count or when every usable point shares one price.
func Fit(samples []models.PriceSample) (Regression, bool) {
	var (
		n, sumX, sumY, sumXY, sumX2, sumY2 float64
		res                                Regression
		bestYield                          float64
	)

	for _, s := range samples {
		if s.Price <= 0 || s.OccupancyRate <= 0 {
			continue
		}

		x := math.Log(s.Price)
		y := math.Log(s.OccupancyRate)
		n++
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
		sumY2 += y * y

		if res.Points == 0 || s.Price < res.MinPrice {
			res.MinPrice = s.Price
		}
		if s.Price > res.MaxPrice {
			res.MaxPrice = s.Price
		}
		if yield := s.Price * s.OccupancyRate; yield > bestYield {
			bestYield = yield
			res.OptimalPrice = s.Price
		}
		res.Points++
	}

	if res.Points < models.MinElasticitySamples {
		return res, false
	}

	xVar := n*sumX2 - sumX*sumX
	if xVar <= 1e-9*n*sumX2 {
		return res, false
	}

	cov := n*sumXY - sumX*sumY
	res.Slope = cov / xVar

	if yVar := n*sumY2 - sumY*sumY; yVar > 0 {
		res.RSquared = math.Min(1, (cov*cov)/(xVar*yVar))
	}

	return res, true
}
