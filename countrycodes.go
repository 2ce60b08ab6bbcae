package signin

import (
	_ "embed"
	"fmt"
	"io"
	"sync"

	"github.com/BurntSushi/toml"
)

//go:embed countrycodes.toml
var countryCodesTOML string

// CountryCode is one entry of the country code picker.
type CountryCode struct {
	Name string `toml:"name" json:"name"`
	Code string `toml:"code" json:"code"`
}

// CountryDirectory is the ordered list of selectable calling codes.
type CountryDirectory struct {
	Default   string        `toml:"default" json:"default"`
	Countries []CountryCode `toml:"country" json:"countries"`
}

var (
	builtinDirectory     *CountryDirectory
	builtinDirectoryOnce sync.Once
)

// CountryCodes returns the built in directory. It panics if the embedded
// data is malformed, which a unit test guards against.
func CountryCodes() *CountryDirectory {
	builtinDirectoryOnce.Do(func() {
		var d CountryDirectory
		if _, err := toml.Decode(countryCodesTOML, &d); err != nil {
			panic(fmt.Sprintf("signin: bad embedded country codes: %v", err))
		}
		builtinDirectory = &d
	})
	return builtinDirectory
}

// LoadCountryCodes reads a directory in the same TOML layout as the built in one.
func LoadCountryCodes(r io.Reader) (*CountryDirectory, error) {
	var d CountryDirectory
	if _, err := toml.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("failed to decode country codes: %w", err)
	}
	if len(d.Countries) == 0 {
		return nil, fmt.Errorf("country code directory is empty")
	}
	if d.Default == "" {
		d.Default = d.Countries[0].Code
	}
	return &d, nil
}

// Contains reports whether code is offered by the directory.
func (d *CountryDirectory) Contains(code string) bool {
	for _, c := range d.Countries {
		if c.Code == code {
			return true
		}
	}
	return false
}
