package config

import "fmt"

func unknownPresetError(p NetworkType) error {
	return fmt.Errorf("config: unknown preset %q", p)
}

func invalidParamError(name string, value any) error {
	return fmt.Errorf("config: invalid value for %s: %v", name, value)
}
