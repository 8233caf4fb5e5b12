package process

import "github.com/fishmodel/asa/modelerr"

func errConfigf(format string, args ...any) error {
	return modelerr.Configurationf(format, args...)
}
