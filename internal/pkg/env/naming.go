package env

import (
	"strings"

	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

// NamingConvention maps CLI flag names to ENV names.
type NamingConvention struct {
	prefix string
}

func NewNamingConvention(prefix string) *NamingConvention {
	return &NamingConvention{prefix: prefix}
}

// FlagToEnv converts flag name to ENV variable name,
// for example "refresh-interval" -> "METRIC_DUCT_REFRESH_INTERVAL".
func (n *NamingConvention) FlagToEnv(flagName string) string {
	if len(flagName) == 0 {
		panic(errors.New("flag name cannot be empty"))
	}
	r := strings.NewReplacer("-", "_", ".", "_")
	return n.prefix + strings.ToUpper(r.Replace(flagName))
}

// Files returns names of the supported .env files, the first one has the highest priority.
func Files() []string {
	return []string{".env.local", ".env"}
}
