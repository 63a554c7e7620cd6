package env

import (
	"os"
	"strings"

	"github.com/go-ini/ini"
	"github.com/pkg/errors"
)

// LoadINI copies the keys of INI files into the process environment. A key
// in section [smtp] named server becomes SMTP_SERVER. Keys outside any
// section are taken as they are, upper-cased. Like .env files, variables
// already set in the environment win, and earlier files win over later ones.
func LoadINI(files ...string) error {
	for _, file := range files {
		f, err := ini.Load(file)
		if err != nil {
			return errors.Wrapf(err, "failed to load %s", file)
		}
		for _, sec := range f.Sections() {
			for _, key := range sec.Keys() {
				name := iniEnvName(sec.Name(), key.Name())
				if _, ok := os.LookupEnv(name); ok {
					continue
				}
				if err := os.Setenv(name, key.String()); err != nil {
					return errors.Wrapf(err, "failed to set %s", name)
				}
			}
		}
	}
	return nil
}

func iniEnvName(section, key string) string {
	name := key
	if section != ini.DefaultSection {
		name = section + "_" + key
	}
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(name))
}
