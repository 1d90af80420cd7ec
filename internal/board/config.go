package board

import (
	"fmt"

	"github.com/roach88/cosim/internal/periph"
)

// Default peripheral names.
const (
	FlashName = "flash"
	UartName  = "uart"
)

// Config describes a loopback system.
type Config struct {
	// BaudDiv is the UART divisor in clock ticks per bit. Zero selects
	// periph.DefaultBaudDiv.
	BaudDiv int `yaml:"baud_div,omitempty" json:"baud_div,omitempty"`

	// Flash is the image preloaded into the flash.
	Flash FlashConfig `yaml:"flash,omitempty" json:"flash,omitempty"`

	// SPI lists the transactions the host issues, in order.
	SPI []Transaction `yaml:"spi,omitempty" json:"spi,omitempty"`
}

// FlashConfig locates a flash image.
type FlashConfig struct {
	Image  string `yaml:"image,omitempty" json:"image,omitempty"`
	Offset uint32 `yaml:"offset,omitempty" json:"offset,omitempty"`
}

// Transaction is one chip-select period driven by the QSPI host.
//
// Reads (0x03) and quad reads (0xEB) send Address; quad reads also send
// a zero mode byte. Every other command is followed by Read bytes clocked
// in single mode.
type Transaction struct {
	Command uint8  `yaml:"command" json:"command"`
	Address uint32 `yaml:"address,omitempty" json:"address,omitempty"`
	Read    int    `yaml:"read,omitempty" json:"read,omitempty"`
}

// Validate checks the configuration without touching the filesystem.
func (c Config) Validate() error {
	if c.BaudDiv != 0 && c.BaudDiv < 2 {
		return fmt.Errorf("baud_div must be at least 2, got %d", c.BaudDiv)
	}
	if int64(c.Flash.Offset) >= periph.FlashSize {
		return fmt.Errorf("flash.offset 0x%x beyond end of flash", c.Flash.Offset)
	}
	for i, tx := range c.SPI {
		if tx.Read < 0 {
			return fmt.Errorf("spi[%d]: read must not be negative", i)
		}
		if tx.Address > 0x00FFFFFF {
			return fmt.Errorf("spi[%d]: address 0x%x exceeds 24 bits", i, tx.Address)
		}
	}
	return nil
}

func (c Config) baudDiv() int {
	if c.BaudDiv == 0 {
		return periph.DefaultBaudDiv
	}
	return c.BaudDiv
}
