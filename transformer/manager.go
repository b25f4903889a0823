package transformer

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/eddielth/air-monitor/airquality"
	"github.com/eddielth/air-monitor/config"
	"github.com/eddielth/air-monitor/logger"
)

// Manager holds one transformer per device type
type Manager struct {
	transformers map[string]*Transformer
	mutex        sync.RWMutex
}

// Transformer wraps a JS runtime exposing a transform(payload) function.
// A goja runtime is not safe for concurrent use, hence mu.
type Transformer struct {
	mu         sync.Mutex
	vm         *goja.Runtime
	transform  goja.Callable
	scriptPath string
}

// NewManager builds transformers for every configured device type
func NewManager(configs map[string]config.Transformer) (*Manager, error) {
	manager := &Manager{
		transformers: make(map[string]*Transformer),
	}

	for deviceType, cfg := range configs {
		t, err := load(cfg)
		if err != nil {
			return nil, fmt.Errorf("transformer for device type %s: %w", deviceType, err)
		}
		manager.transformers[deviceType] = t
		logger.Info("loaded transformer for device type %s", deviceType)
	}

	return manager, nil
}

func load(cfg config.Transformer) (*Transformer, error) {
	scriptCode := cfg.ScriptCode
	if scriptCode == "" {
		if cfg.ScriptPath == "" {
			return nil, fmt.Errorf("neither script_code nor script_path given")
		}
		scriptBytes, err := os.ReadFile(cfg.ScriptPath)
		if err != nil {
			return nil, fmt.Errorf("load script file %s: %w", cfg.ScriptPath, err)
		}
		scriptCode = string(scriptBytes)
	}

	return newTransformer(scriptCode, cfg.ScriptPath)
}

func newTransformer(scriptCode, scriptPath string) (*Transformer, error) {
	vm := goja.New()

	_ = vm.Set("log", func(msg string) {
		logger.Info("[JS] %s", msg)
	})

	_ = vm.Set("parseJSON", func(jsonStr string) interface{} {
		var data interface{}
		if err := json.Unmarshal([]byte(jsonStr), &data); err != nil {
			logger.Warn("failed to parse JSON: %v", err)
			return nil
		}
		return data
	})

	_ = vm.Set("formatDate", func(timestamp int64, format string) string {
		if format == "" {
			format = time.RFC3339
		}
		return time.Unix(timestamp, 0).UTC().Format(format)
	})

	_ = vm.Set("convertConcentration", convertConcentration)

	_ = vm.Set("validateRange", func(value float64, min float64, max float64) bool {
		return value >= min && value <= max
	})

	if _, err := vm.RunString(scriptCode); err != nil {
		return nil, fmt.Errorf("run script: %w", err)
	}

	transform, ok := goja.AssertFunction(vm.Get("transform"))
	if !ok {
		return nil, fmt.Errorf("script does not define a 'transform' function")
	}

	return &Transformer{
		vm:         vm,
		transform:  transform,
		scriptPath: scriptPath,
	}, nil
}

// convertConcentration converts between ppb/ppm and between mg/m3/ug/m3.
// Unknown or mismatched units return the value unchanged.
func convertConcentration(value float64, fromUnit, toUnit string) float64 {
	factor := map[string]float64{
		"ppm":   1,
		"ppb":   1e-3,
		"mg/m3": 1,
		"ug/m3": 1e-3,
		"µg/m3": 1e-3,
	}
	family := map[string]string{
		"ppm": "ratio", "ppb": "ratio",
		"mg/m3": "mass", "ug/m3": "mass", "µg/m3": "mass",
	}

	from := strings.ToLower(strings.TrimSpace(fromUnit))
	to := strings.ToLower(strings.TrimSpace(toUnit))
	if family[from] == "" || family[from] != family[to] {
		return value
	}
	return value * factor[from] / factor[to]
}

// HasTransformer reports whether deviceType has a script
func (m *Manager) HasTransformer(deviceType string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	_, ok := m.transformers[deviceType]
	return ok
}

// Transform converts a raw device payload into a sample. Device types
// without a script must already send the normalized JSON shape.
func (m *Manager) Transform(deviceType, deviceName string, data []byte, received time.Time) (airquality.SensorSample, error) {
	m.mutex.RLock()
	t, exists := m.transformers[deviceType]
	m.mutex.RUnlock()

	var payload SamplePayload
	var err error
	if exists {
		payload, err = t.run(data)
	} else {
		payload, err = DecodePayload(data)
	}
	if err != nil {
		return airquality.SensorSample{}, err
	}

	return payload.Sample(deviceName, received)
}

func (t *Transformer) run(data []byte) (SamplePayload, error) {
	t.mu.Lock()
	result, err := t.transform(goja.Undefined(), t.vm.ToValue(string(data)))
	var exported interface{}
	if err == nil {
		exported = result.Export()
	}
	t.mu.Unlock()

	if err != nil {
		return SamplePayload{}, fmt.Errorf("run transform: %w", err)
	}
	if exported == nil {
		return SamplePayload{}, fmt.Errorf("transform returned no value")
	}

	jsonData, err := json.Marshal(exported)
	if err != nil {
		return SamplePayload{}, fmt.Errorf("serialize transform result: %w", err)
	}
	return DecodePayload(jsonData)
}

// ReloadTransformer replaces the script of a device type
func (m *Manager) ReloadTransformer(deviceType string, cfg config.Transformer) error {
	t, err := load(cfg)
	if err != nil {
		return err
	}

	m.mutex.Lock()
	m.transformers[deviceType] = t
	m.mutex.Unlock()

	logger.Info("reloaded transformer for device type %s", deviceType)
	return nil
}
