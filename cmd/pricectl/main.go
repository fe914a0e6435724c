// pricectl is the operator CLI of the pricing engine.
//
// Usage:
//
//	pricectl quote --flight 1001 --cabin economy --identifier user:42
//	pricectl experiment create --file experiment.json
//	pricectl experiment results --id <test-id>
//	pricectl optimize --flight 1001 --cabin business --goal maximize_yield
//	pricectl apply --log <log-id> --approver ops@example.com
//	pricectl migrate up
//	pricectl migrate status
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/selivandex/pricing-engine/internal/adapters/database"
	"github.com/selivandex/pricing-engine/internal/app"
	"github.com/selivandex/pricing-engine/internal/experiments"
	"github.com/selivandex/pricing-engine/internal/optimizer"
	"github.com/selivandex/pricing-engine/pkg/models"
)

var version = "dev"

func main() {
	cliApp := &cli.App{
		Name:    "pricectl",
		Usage:   "Operate dynamic pricing, experiments and optimizations",
		Version: version,
		Commands: []*cli.Command{
			quoteCommand(),
			experimentCommand(),
			optimizeCommand(),
			applyCommand(),
			migrateCommand(),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withApp builds the services from the environment for one command
func withApp(c *cli.Context, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}

	a, err := app.New(c.Context, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(c.Context, a)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func cabinFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "cabin",
		Aliases: []string{"c"},
		Value:   string(models.CabinEconomy),
		Usage:   "Cabin class (economy, premium_economy, business, first)",
	}
}

func flightFlag() cli.Flag {
	return &cli.Int64Flag{
		Name:     "flight",
		Aliases:  []string{"f"},
		Usage:    "Flight id",
		Required: true,
	}
}

// =============================================================================
// QUOTE
// =============================================================================

func quoteCommand() *cli.Command {
	return &cli.Command{
		Name:  "quote",
		Usage: "Compute the price multiplier for a flight cabin and identifier",
		Flags: []cli.Flag{
			flightFlag(),
			cabinFlag(),
			&cli.StringFlag{
				Name:     "identifier",
				Aliases:  []string{"i"},
				Usage:    "user:<id> or session:<id>",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			cabin, err := models.ParseCabinClass(c.String("cabin"))
			if err != nil {
				return err
			}
			identifier, err := models.ParseIdentifier(c.String("identifier"))
			if err != nil {
				return err
			}

			return withApp(c, func(ctx context.Context, a *app.App) error {
				res, err := a.Pricing.GetPriceMultiplier(ctx, c.Int64("flight"), cabin, identifier)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
}

// =============================================================================
// EXPERIMENTS
// =============================================================================

func experimentCommand() *cli.Command {
	idFlag := &cli.StringFlag{Name: "id", Usage: "Experiment id", Required: true}

	transition := func(name, usage string, op func(*experiments.Service, context.Context, uuid.UUID) error) *cli.Command {
		return &cli.Command{
			Name:  name,
			Usage: usage,
			Flags: []cli.Flag{idFlag},
			Action: func(c *cli.Context) error {
				id, err := uuid.Parse(c.String("id"))
				if err != nil {
					return fmt.Errorf("%w: bad experiment id: %v", models.ErrValidation, err)
				}
				return withApp(c, func(ctx context.Context, a *app.App) error {
					if err := op(a.Experiments, ctx, id); err != nil {
						return err
					}
					fmt.Printf("experiment %s: %s ok\n", id, name)
					return nil
				})
			},
		}
	}

	return &cli.Command{
		Name:  "experiment",
		Usage: "Manage pricing A/B tests",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a draft experiment from a JSON request file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Usage: "Path to the request JSON", Required: true},
				},
				Action: runExperimentCreate,
			},
			transition("start", "Start a draft or paused experiment", (*experiments.Service).StartExperiment),
			transition("pause", "Pause a running experiment", (*experiments.Service).PauseExperiment),
			transition("complete", "Complete a running or paused experiment", (*experiments.Service).CompleteExperiment),
			transition("cancel", "Cancel an experiment that has not finished", (*experiments.Service).CancelExperiment),
			{
				Name:  "results",
				Usage: "Show per-variant results and significance",
				Flags: []cli.Flag{idFlag},
				Action: func(c *cli.Context) error {
					id, err := uuid.Parse(c.String("id"))
					if err != nil {
						return fmt.Errorf("%w: bad experiment id: %v", models.ErrValidation, err)
					}
					return withApp(c, func(ctx context.Context, a *app.App) error {
						report, err := a.Experiments.GetExperimentResults(ctx, id)
						if err != nil {
							return err
						}
						return printJSON(report)
					})
				},
			},
			{
				Name:  "convert",
				Usage: "Attribute a booking to an exposed variant",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "test", Usage: "Experiment id", Required: true},
					&cli.StringFlag{Name: "variant", Usage: "Variant id", Required: true},
					&cli.StringFlag{Name: "identifier", Usage: "user:<id> or session:<id>", Required: true},
					&cli.StringFlag{Name: "booking", Usage: "Booking id", Required: true},
					&cli.StringFlag{Name: "revenue", Value: "0", Usage: "Booking revenue"},
				},
				Action: runConversion,
			},
		},
	}
}

func runExperimentCreate(c *cli.Context) error {
	raw, err := os.ReadFile(c.String("file"))
	if err != nil {
		return fmt.Errorf("failed to read request: %w", err)
	}

	var req experiments.CreateExperimentRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("%w: failed to parse request: %v", models.ErrValidation, err)
	}

	return withApp(c, func(ctx context.Context, a *app.App) error {
		test, err := a.Experiments.CreateExperiment(ctx, req)
		if err != nil {
			return err
		}
		return printJSON(test)
	})
}

func runConversion(c *cli.Context) error {
	testID, err := uuid.Parse(c.String("test"))
	if err != nil {
		return fmt.Errorf("%w: bad test id: %v", models.ErrValidation, err)
	}
	variantID, err := uuid.Parse(c.String("variant"))
	if err != nil {
		return fmt.Errorf("%w: bad variant id: %v", models.ErrValidation, err)
	}
	identifier, err := models.ParseIdentifier(c.String("identifier"))
	if err != nil {
		return err
	}
	revenue, err := decimal.NewFromString(c.String("revenue"))
	if err != nil {
		return fmt.Errorf("%w: bad revenue: %v", models.ErrValidation, err)
	}

	return withApp(c, func(ctx context.Context, a *app.App) error {
		outcome, err := a.Experiments.RecordConversion(ctx, experiments.ConversionRequest{
			TestID:     testID,
			VariantID:  variantID,
			Identifier: identifier,
			BookingID:  c.String("booking"),
			Revenue:    revenue,
		})
		if err != nil {
			return err
		}
		return printJSON(outcome)
	})
}

// =============================================================================
// OPTIMIZATION
// =============================================================================

func optimizeCommand() *cli.Command {
	return &cli.Command{
		Name:  "optimize",
		Usage: "Suggest an optimized price and log it for approval",
		Flags: []cli.Flag{
			flightFlag(),
			cabinFlag(),
			&cli.StringFlag{
				Name:  "goal",
				Value: string(models.GoalBalance),
				Usage: "maximize_revenue, maximize_load_factor, maximize_yield or balance",
			},
			&cli.Float64Flag{Name: "demand", Usage: "Demand forecast to weigh in"},
		},
		Action: func(c *cli.Context) error {
			cabin, err := models.ParseCabinClass(c.String("cabin"))
			if err != nil {
				return err
			}
			return withApp(c, func(ctx context.Context, a *app.App) error {
				res, err := a.Optimizer.Optimize(ctx, optimizer.OptimizeRequest{
					FlightID:       c.Int64("flight"),
					CabinClass:     cabin,
					Goal:           models.OptimizationGoal(c.String("goal")),
					DemandForecast: c.Float64("demand"),
				})
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
}

func applyCommand() *cli.Command {
	return &cli.Command{
		Name:  "apply",
		Usage: "Apply a suggested optimization to the live flight price",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log", Usage: "Optimization log id", Required: true},
			&cli.StringFlag{Name: "approver", Usage: "Who approved the change", Required: true},
		},
		Action: func(c *cli.Context) error {
			logID, err := uuid.Parse(c.String("log"))
			if err != nil {
				return fmt.Errorf("%w: bad log id: %v", models.ErrValidation, err)
			}
			return withApp(c, func(ctx context.Context, a *app.App) error {
				res, err := a.Optimizer.ApplyOptimization(ctx, logID, c.String("approver"))
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
}

// =============================================================================
// MIGRATIONS
// =============================================================================

func migrateCommand() *cli.Command {
	run := func(op func(c *cli.Context, mg *database.Migrator) error) cli.ActionFunc {
		return func(c *cli.Context) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			db, err := database.New(&cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			mg, err := database.NewMigrator(db.DB().DB, cfg.Database.MigrationsPath)
			if err != nil {
				return err
			}
			return op(c, mg)
		}
	}

	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply, roll back or inspect database migrations",
		Subcommands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Apply all pending migrations",
				Action: run(func(_ *cli.Context, mg *database.Migrator) error {
					return mg.Up()
				}),
			},
			{
				Name:  "down",
				Usage: "Roll back applied migrations",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "steps", Value: 1, Usage: "How many migrations to roll back"},
				},
				Action: run(func(c *cli.Context, mg *database.Migrator) error {
					return mg.Down(c.Int("steps"))
				}),
			},
			{
				Name:  "status",
				Usage: "Show the current schema version",
				Action: run(func(_ *cli.Context, mg *database.Migrator) error {
					state, err := mg.State()
					if err != nil {
						return err
					}
					return printJSON(state)
				}),
			},
			{
				Name:  "force",
				Usage: "Mark a version as applied and clean after a manual repair",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "version", Usage: "Schema version", Required: true},
				},
				Action: run(func(c *cli.Context, mg *database.Migrator) error {
					return mg.Force(c.Int("version"))
				}),
			},
		},
	}
}
