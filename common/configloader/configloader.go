// common/configloader/configloader.go
package configloader

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Options описывает источник конфигурации одного сервиса.
type Options struct {
	Path      string                 // путь до YAML; пустой → только ENV + defaults
	EnvPrefix string                 // префикс ENV переменных, например "DATASET_API"
	Out       interface{}            // указатель на структуру конфига
	Defaults  map[string]interface{} // ключи в dotted-нотации: "http.addr"
}

// Load загружает конфиг в opts.Out: defaults → ENV → YAML → decode → Validate.
func Load(opts Options) error {
	if opts.Out == nil {
		return fmt.Errorf("configloader: Out is required")
	}
	v := viper.New()

	// Шаг 1: defaults
	for key, val := range opts.Defaults {
		v.SetDefault(key, val)
	}

	// Шаг 2: environment override
	if opts.EnvPrefix != "" {
		v.SetEnvPrefix(opts.EnvPrefix)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Шаг 3: read file (if provided)
	if opts.Path != "" {
		v.SetConfigFile(opts.Path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("configloader: read config %q: %w", opts.Path, err)
		}
	}

	// Шаг 4: decode
	if err := decode(v.AllSettings(), opts.Out); err != nil {
		return fmt.Errorf("configloader: decode failed: %w", err)
	}

	// Шаг 5: validate if possible
	if vv, ok := opts.Out.(interface{ Validate() error }); ok {
		if err := vv.Validate(); err != nil {
			return fmt.Errorf("configloader: validation failed: %w", err)
		}
	}

	return nil
}
