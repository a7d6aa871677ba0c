package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Version is the application version reported by the CLI and user agent.
const Version = "0.3.0"

const configTemplate = `# candlelens configuration

[datasource]
# Chart data service
base_url = "http://127.0.0.1:5000"
timeout = "15s"
# Minimum readings before a factor percentile is emitted
min_periods = 5

[chart]
default_days = 30
min_days = 10
max_days = 100
width = 1280
height = 720

# Overlays switched on when a chart loads
[chart.overlays]
ma20 = false
bb_upper = false
bb_lower = false

[cache]
# none, memory, buntdb or redis
backend = "memory"
ttl = "1h"
# redis_addr = "127.0.0.1:6379"

[scoring]
momentum_weight = 0.35
breadth_weight = 0.30
lowvol_weight = 0.20
eqbond_weight = 0.15
trend_kappa = 0.90
reversal_kappa = 0.75
spread = 0.45
min_probability = 0.05
max_probability = 0.95
# +1 when a high percentile favours upside
breadth_sign = 1.0
lowvol_sign = 1.0
eqbond_sign = 1.0

[log]
level = "info"
console = true
file = false
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}
