package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"memobot/internal/config"
	"memobot/internal/provider"
	"memobot/internal/store"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	var network bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your memobot installation",
		Long: `Verifies that memobot's configuration, Drive credentials, journal
database, and OpenAI access are correctly set up. Reports pass/fail for each
check. Pass --network to also probe the OpenAI and Drive APIs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("Memobot Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(config.ExpandPath(cfgPath)); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				failed++
				fmt.Printf("\nRun 'memobot init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
			} else {
				printPass("Config validation", "valid")
				passed++
			}

			if cfg == nil {
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return nil
			}

			// 3. Service account key parses
			if cfg.Drive.ServiceAccountFile != "" {
				if err := checkServiceAccount(cfg.Drive.ServiceAccountFile); err != nil {
					printFail("Drive credentials", err.Error())
					failed++
				} else {
					printPass("Drive credentials", cfg.Drive.ServiceAccountFile)
					passed++
				}
			}

			// 4. Journal database writable
			if cfg.Journal.Enabled {
				if err := checkDatabase(cfg.Journal.DBPath); err != nil {
					printFail("Journal database", err.Error())
					failed++
				} else {
					printPass("Journal database", cfg.Journal.DBPath)
					passed++
				}
			}

			// 5. Prompt overrides file readable
			if cfg.Pipeline.PromptsFile != "" {
				if _, err := os.Stat(cfg.Pipeline.PromptsFile); err != nil {
					printWarn("Prompts file", fmt.Sprintf("not found: %s", cfg.Pipeline.PromptsFile))
					warned++
				} else {
					printPass("Prompts file", cfg.Pipeline.PromptsFile)
					passed++
				}
			}

			// 6. Metrics port available
			if cfg.Metrics.Enabled {
				if err := checkAddr(cfg.Metrics.Addr); err != nil {
					printWarn("Metrics addr", fmt.Sprintf("%s may be in use: %v", cfg.Metrics.Addr, err))
					warned++
				} else {
					printPass("Metrics addr", cfg.Metrics.Addr+" available")
					passed++
				}
			}

			// 7. Log file writable
			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.General.LogFile)
					passed++
				}
			}

			// 8. Optional live API probes
			if network {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				prov := provider.NewOpenAI(provider.OpenAIConfig{
					APIKey:     cfg.OpenAI.APIKey,
					APIBase:    cfg.OpenAI.APIBase,
					Model:      cfg.OpenAI.Model,
					MaxRetries: cfg.OpenAI.MaxRetries,
					Logger:     logger,
				})
				if err := prov.Healthy(ctx); err != nil {
					printFail("OpenAI API", err.Error())
					failed++
				} else {
					printPass("OpenAI API", "reachable")
					passed++
				}

				drive, err := store.NewDrive(store.DriveConfig{
					ServiceAccountFile: cfg.Drive.ServiceAccountFile,
					Logger:             logger,
				})
				if err != nil {
					printFail("Drive API", err.Error())
					failed++
				} else if err := drive.Healthy(ctx); err != nil {
					printFail("Drive API", err.Error())
					failed++
				} else {
					printPass("Drive API", "token obtained")
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running memobot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nMemobot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! Memobot is ready to run.\n")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&network, "network", false, "also probe the OpenAI and Drive APIs")
	return cmd
}

// checkServiceAccount verifies the key file exists and looks like a service
// account JSON key.
func checkServiceAccount(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read: %w", err)
	}
	var key struct {
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
	}
	if err := json.Unmarshal(data, &key); err != nil {
		return fmt.Errorf("not valid JSON: %w", err)
	}
	if key.ClientEmail == "" || key.PrivateKey == "" {
		return fmt.Errorf("missing client_email or private_key")
	}
	return nil
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}

	// Try a write.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return nil
}

func checkAddr(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
