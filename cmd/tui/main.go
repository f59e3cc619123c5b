package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gapsniper-go/internal/config"
)

const defaultConfigPath = "internal/config/config.yaml"

func main() {
	reader := bufio.NewReader(os.Stdin)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	for {
		fmt.Println("\n=== GapSniper Control ===")
		fmt.Println("1) Show configuration summary")
		fmt.Println("2) Edit detector thresholds")
		fmt.Println("3) Edit throttle limits")
		fmt.Println("4) Edit target discovery")
		fmt.Println("5) Save config")
		fmt.Println("6) Launch sniper")
		fmt.Println("7) Reload config from disk")
		fmt.Println("0) Exit")
		fmt.Print("Select option: ")

		input, _ := reader.ReadString('\n')
		choice := strings.TrimSpace(input)

		switch choice {
		case "1":
			printSummary(cfg)
		case "2":
			editDetector(reader, cfg)
		case "3":
			editThrottle(reader, cfg)
		case "4":
			editDiscovery(reader, cfg)
		case "5":
			if err := saveConfig(cfg); err != nil {
				fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			} else {
				fmt.Println("config saved")
			}
		case "6":
			launchSniper(reader)
		case "7":
			reloaded, err := loadConfig()
			if err != nil {
				fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
			} else {
				cfg = reloaded
				fmt.Println("config reloaded")
			}
		case "0":
			return
		default:
			fmt.Println("unknown option")
		}
	}
}

func printSummary(cfg *config.Config) {
	d, th := cfg.Detector, cfg.Throttle
	fmt.Println("\n--- Configuration Summary ---")
	fmt.Printf("Provider: %s | emitter: %s\n", cfg.Exchange.Provider, cfg.Emitter.Mode)
	fmt.Printf("Detector mode: %s %v\n", d.Mode, d.Predicates)
	fmt.Printf("Pressure alpha %.2f | trigger %.2f | clear %.2f\n", d.PressureAlpha, d.PressureTrigger, d.PressureClear)
	fmt.Printf("Gap spread %.1fbp | max spread %.1fbp\n", d.GapSpreadBp, d.MaxSpreadBp)
	fmt.Printf("Min notional bid $%.0f / ask $%.0f | min imbalance %.2f (%s)\n", d.MinBidNotional, d.MinAskNotional, d.MinImbalance, d.ImbalanceMode)
	fmt.Printf("Min slope %.2fbp | min upticks %d | sustain %.2fs\n", d.MinSlopeBp, d.MinUpticks, d.SustainDurationSec)
	fmt.Printf("Cooldown %.0fs | dedup %.1fs | max %d/min\n", th.CooldownSec, th.DedupWindowSec, th.MaxSignalsPerMinute)
	fmt.Println("Manual symbols:", strings.Join(cfg.Exchange.Symbols, ", "))
	fmt.Printf("Discovery enabled=%t top %d every %ds\n", cfg.Exchange.Discovery.Enabled, cfg.Exchange.Discovery.TopN, cfg.Exchange.Discovery.RefreshInterval/1000)
}

func editDetector(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Detector ---")
	d := &cfg.Detector
	d.PressureTrigger = promptFloat(reader, "Pressure trigger", d.PressureTrigger)
	d.GapSpreadBp = promptFloat(reader, "Gap spread (bp)", d.GapSpreadBp)
	d.MaxSpreadBp = promptFloat(reader, "Max spread (bp, 0 = off)", d.MaxSpreadBp)
	d.MinBidNotional = promptFloat(reader, "Min bid notional", d.MinBidNotional)
	d.MinAskNotional = promptFloat(reader, "Min ask notional", d.MinAskNotional)
	d.MinImbalance = promptFloat(reader, "Min imbalance ratio", d.MinImbalance)
	d.SustainDurationSec = promptFloat(reader, "Sustain duration (s)", d.SustainDurationSec)
}

func editThrottle(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Throttle ---")
	th := &cfg.Throttle
	th.CooldownSec = promptFloat(reader, "Cooldown (s)", th.CooldownSec)
	th.DedupWindowSec = promptFloat(reader, "Dedup window (s)", th.DedupWindowSec)
	th.MaxSignalsPerMinute = int(promptFloat(reader, "Max signals per minute", float64(th.MaxSignalsPerMinute)))
}

func editDiscovery(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Discovery ---")
	fmt.Printf("Current manual symbols: %s\n", strings.Join(cfg.Exchange.Symbols, ", "))
	fmt.Print("Enter symbols comma-separated (blank to keep): ")
	if line, _ := reader.ReadString('\n'); strings.TrimSpace(line) != "" {
		cfg.Exchange.Symbols = nil
		for _, p := range strings.Split(strings.TrimSpace(line), ",") {
			if trimmed := strings.ToUpper(strings.TrimSpace(p)); trimmed != "" {
				cfg.Exchange.Symbols = append(cfg.Exchange.Symbols, trimmed)
			}
		}
	}
	disc := &cfg.Exchange.Discovery
	disc.TopN = int(promptFloat(reader, "Bitvavo top N", float64(disc.TopN)))
	disc.RefreshInterval = int(promptFloat(reader, "Refresh interval (s)", float64(disc.RefreshInterval)/1000) * 1000)
}

func launchSniper(reader *bufio.Reader) {
	fmt.Println("Launching sniper (Ctrl+C to stop)...")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", "run", "./cmd/sniper", "-config", locateConfig())
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start sniper: %v\n", err)
		return
	}

	go func() {
		_ = cmd.Wait()
		cancel()
	}()

	fmt.Print("\nPress ENTER to stop the sniper and return to menu...")
	_, _ = reader.ReadString('\n')
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func promptFloat(reader *bufio.Reader, label string, current float64) float64 {
	fmt.Printf("%s [%.2f]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.ParseFloat(line, 64)
	if err != nil {
		fmt.Printf("invalid number, keeping %.2f\n", current)
		return current
	}
	return val
}

func loadConfig() (*config.Config, error) {
	return config.Load(locateConfig())
}

// saveConfig validates a copy with defaults filled in but writes the sparse edited config.
func saveConfig(cfg *config.Config) error {
	check := *cfg
	if err := check.Finalize(); err != nil {
		return err
	}
	return config.Save(locateConfig(), cfg)
}

func locateConfig() string {
	if p := os.Getenv("SNIPER_CONFIG"); p != "" {
		return filepath.Clean(p)
	}
	return filepath.Clean(defaultConfigPath)
}
