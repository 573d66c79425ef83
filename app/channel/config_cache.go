package channel

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

type ConfigCache struct {
	channelsDir string
	cache       map[string]*Config
	mu          sync.RWMutex
}

func NewConfigCache(channelsDir string) *ConfigCache {
	return &ConfigCache{
		channelsDir: channelsDir,
		cache:       make(map[string]*Config),
	}
}

func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.channelsDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.channelsDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		// Derive channel name from filename (remove .yml extension)
		fileName := filepath.Base(file)
		channelName := fileName[:len(fileName)-4]

		config, err := cc.LoadConfig(channelName)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Channel configuration loaded", "channel", channelName, "enabled", config.Settings.Enabled, "dest_code", config.DestCode)
	}

	return nil
}

func (cc *ConfigCache) LoadConfig(channelName string) (*Config, error) {
	configFile := cc.getConfigFilePath(channelName)
	channelConfig, err := cc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	channelConfig.Name = channelName

	if err := cc.validateConfig(channelConfig); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[channelConfig.Name] = channelConfig

	return channelConfig, nil
}

func (cc *ConfigCache) GetConfig(channelName string) (*Config, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	channelConfig, ok := cc.cache[channelName]
	if !ok {
		return nil, fmt.Errorf("channel config with name '%s' not found", channelName)
	}
	return channelConfig, nil
}

func (cc *ConfigCache) GetConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	configsCopy := make(map[string]*Config, len(cc.cache))
	for k, v := range cc.cache {
		configsCopy[k] = v
	}
	return configsCopy
}

// GetEnabledConfigs returns enabled channels in stable name order so polls
// and sweeps visit channels deterministically.
func (cc *ConfigCache) GetEnabledConfigs() []*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	var enabled []*Config
	for _, v := range cc.cache {
		if v.Settings.Enabled {
			enabled = append(enabled, v)
		}
	}
	sort.Slice(enabled, func(i, j int) bool { return enabled[i].Name < enabled[j].Name })
	return enabled
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func (cc *ConfigCache) parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var channelConfig Config
	if err := yaml.Unmarshal(data, &channelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if channelConfig.Settings.MaxItems == 0 {
		channelConfig.Settings.MaxItems = 10
	}

	return &channelConfig, nil
}

func (cc *ConfigCache) validateConfig(channelConfig *Config) error {
	if channelConfig == nil {
		return fmt.Errorf("channelConfig is nil")
	}

	requiredFields := map[string]string{
		"channel name":     channelConfig.Name,
		"feed URL":         channelConfig.FeedURL,
		"destination code": channelConfig.DestCode,
	}

	for fieldName, fieldValue := range requiredFields {
		if fieldValue == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
	}

	if channelConfig.Settings.MaxItems < 0 {
		return fmt.Errorf("max items must be non-negative")
	}

	validFields := map[string]bool{
		"title":    true,
		"duration": true,
	}

	for i, filter := range channelConfig.Filters {
		if !validFields[filter.Field] {
			return fmt.Errorf("invalid filter field at index %d: %s", i, filter.Field)
		}
		switch filter.Field {
		case "title":
			if len(filter.Includes) == 0 && len(filter.Excludes) == 0 {
				return fmt.Errorf("filter at index %d must have at least one include or exclude rule", i)
			}
		case "duration":
			if filter.MinSeconds == 0 && filter.MaxSeconds == 0 {
				return fmt.Errorf("filter at index %d must have a min or max duration", i)
			}
			if filter.MaxSeconds > 0 && filter.MinSeconds > filter.MaxSeconds {
				return fmt.Errorf("filter at index %d has min duration above max", i)
			}
		}
	}

	return nil
}

func (cc *ConfigCache) getConfigFilePath(channelName string) string {
	return filepath.Join(cc.channelsDir, channelName+".yml")
}
