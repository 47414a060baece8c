package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"upside-down-research.com/oss/goap/internal/config"
	"upside-down-research.com/oss/goap/internal/memory"
	"upside-down-research.com/oss/goap/internal/validation"
)

// DoctorCommand runs system diagnostics
type DoctorCommand struct {
	Config  string        `name:"config" help:"Configuration file path" type:"path"`
	Timeout time.Duration `name:"timeout" help:"Timeout for connectivity checks" default:"5s"`
}

// Run executes the doctor command
func (cmd *DoctorCommand) Run() error {
	fmt.Println("🏥 Running GOAP diagnostics...")
	fmt.Println()

	allOk := true

	cfg, err := config.LoadConfig(cmd.Config)
	if err != nil {
		fmt.Printf("❌ Config: %v\n", err)
		allOk = false
	} else {
		result := validation.ValidateConfig(cfg)
		if result.IsValid() {
			fmt.Println("✓ Configuration: valid")
		} else {
			fmt.Println("❌ Configuration: has errors")
			for _, e := range result.Errors {
				fmt.Printf("  • %s\n", e.Error())
			}
			allOk = false
		}
		if len(result.Warnings) > 0 {
			fmt.Println("⚠️  Configuration: has warnings")
			for _, w := range result.Warnings {
				fmt.Printf("  • %s: %s\n", w.Field, w.Message)
			}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cmd.Timeout)
	defer cancel()

	if cfg != nil && !checkSink(ctx, cfg.Sink) {
		allOk = false
	}
	if cfg != nil && cfg.Metrics.Enabled && !checkPushgateway(ctx, cfg.Metrics.Pushgateway) {
		allOk = false
	}

	fmt.Println()
	if allOk {
		fmt.Println("🎉 All systems ready!")
		return nil
	}
	fmt.Println("⚠️  Some issues found - please fix before running")
	return fmt.Errorf("validation failed")
}

func checkSink(ctx context.Context, cfg config.SinkConfig) bool {
	if cfg.Backend == "" || cfg.Backend == config.BackendNone {
		fmt.Println("✓ Event sink: disabled")
		return true
	}

	sink, err := memory.Open(ctx, cfg)
	if err != nil {
		fmt.Printf("❌ Event sink (%s): %v\n", cfg.Backend, err)
		return false
	}
	defer sink.Close()

	if p, ok := sink.(memory.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			fmt.Printf("❌ Event sink (%s): %v\n", cfg.Backend, err)
			return false
		}
	}
	fmt.Printf("✓ Event sink: %s reachable\n", cfg.Backend)
	return true
}

func checkPushgateway(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/-/healthy", nil)
	if err != nil {
		fmt.Printf("❌ Pushgateway: %v\n", err)
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("❌ Pushgateway: %v\n", err)
		fmt.Println("  Fix: start a pushgateway or set metrics.enabled: false")
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("❌ Pushgateway: unexpected status %s\n", resp.Status)
		return false
	}
	fmt.Printf("✓ Pushgateway: %s healthy\n", url)
	return true
}
