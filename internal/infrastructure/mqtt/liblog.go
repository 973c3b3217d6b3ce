package mqtt

import (
	"fmt"
	"strings"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// LibraryLogger receives paho's internal log output.
type LibraryLogger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// pahoBridge adapts a structured log function to paho's Println/Printf logger.
type pahoBridge struct {
	log func(msg string, args ...any)
}

func (b pahoBridge) Println(v ...any) {
	b.log(strings.TrimSpace(fmt.Sprintln(v...)), "source", "paho")
}

func (b pahoBridge) Printf(format string, v ...any) {
	b.log(strings.TrimSpace(fmt.Sprintf(format, v...)), "source", "paho")
}

// SetLibraryLogger routes paho's package-level loggers into logger.
// Debug output is only bridged when debug is true; paho is very chatty.
//
// This mutates paho globals and should be called once at startup.
func SetLibraryLogger(logger LibraryLogger, debug bool) {
	pahomqtt.ERROR = pahoBridge{log: logger.Error}
	pahomqtt.CRITICAL = pahoBridge{log: logger.Error}
	pahomqtt.WARN = pahoBridge{log: logger.Warn}
	if debug {
		pahomqtt.DEBUG = pahoBridge{log: logger.Debug}
	} else {
		pahomqtt.DEBUG = pahomqtt.NOOPLogger{}
	}
}
