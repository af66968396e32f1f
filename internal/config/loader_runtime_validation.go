package config

import (
	"fmt"
	"strconv"
	"strings"
)

// applyRuntimeValidation applies runtime validations and transformations
func applyRuntimeValidation(cfg *Config) error {
	return applyPoolSpecs(cfg)
}

// applyPoolSpecs parses the raw pool list into PoolSpecs, filling in the
// configured defaults for parts left out of an entry.
func applyPoolSpecs(cfg *Config) error {
	specs, err := parsePoolList(cfg.Router.Pools, &cfg.Router)
	if err != nil {
		return fmt.Errorf("failed to parse pool list: %w", err)
	}
	cfg.Router.PoolSpecs = specs
	return nil
}

// parsePoolList parses "code:concurrency:capacity:rateLimitPerMinute;..."
// into pool specs. Everything after the code is optional.
func parsePoolList(raw string, rc *RouterConfig) ([]PoolSpec, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("pool list cannot be empty")
	}

	seen := make(map[string]bool)
	var specs []PoolSpec
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		spec, err := parsePoolEntry(entry, rc)
		if err != nil {
			return nil, err
		}
		if seen[spec.Code] {
			return nil, fmt.Errorf("duplicate pool code %q", spec.Code)
		}
		seen[spec.Code] = true
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("pool list cannot be empty")
	}
	return specs, nil
}

// parsePoolEntry parses a single "code[:concurrency[:capacity[:rateLimit]]]" entry
func parsePoolEntry(entry string, rc *RouterConfig) (PoolSpec, error) {
	parts := strings.Split(entry, ":")
	if len(parts) > 4 {
		return PoolSpec{}, fmt.Errorf("pool entry %q has too many parts", entry)
	}

	code := strings.TrimSpace(parts[0])
	if code == "" {
		return PoolSpec{}, fmt.Errorf("pool entry %q has an empty code", entry)
	}

	spec := PoolSpec{Code: code, Concurrency: rc.DefaultConcurrency}

	if len(parts) > 1 && parts[1] != "" {
		n, err := strconv.Atoi(parts[1])
		if err != nil || n < 1 {
			return PoolSpec{}, fmt.Errorf("pool %q has invalid concurrency %q", code, parts[1])
		}
		spec.Concurrency = n
	}

	if len(parts) > 2 && parts[2] != "" {
		n, err := strconv.Atoi(parts[2])
		if err != nil || n < 1 {
			return PoolSpec{}, fmt.Errorf("pool %q has invalid queue capacity %q", code, parts[2])
		}
		spec.QueueCapacity = n
	} else {
		spec.QueueCapacity = defaultQueueCapacity(spec.Concurrency, rc)
	}

	if len(parts) > 3 && parts[3] != "" {
		n, err := strconv.Atoi(parts[3])
		if err != nil || n < 0 {
			return PoolSpec{}, fmt.Errorf("pool %q has invalid rate limit %q", code, parts[3])
		}
		spec.RateLimitPerMinute = n
	}

	return spec, nil
}

// defaultQueueCapacity derives a queue capacity from concurrency,
// never going below the configured minimum.
func defaultQueueCapacity(concurrency int, rc *RouterConfig) int {
	capacity := concurrency * rc.CapacityMultiplier
	if capacity < rc.MinQueueCapacity {
		capacity = rc.MinQueueCapacity
	}
	return capacity
}
