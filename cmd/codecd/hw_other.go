//go:build !linux

package main

import (
	"context"
	"errors"

	"github.com/micro-nova/codecd/internal/config"
)

var errNotLinux = errors.New("only supported on linux")

func openI2C(*config.Config) (*buses, error) { return nil, errNotLinux }

func resetCodec(string) error { return errNotLinux }

func watchIRQ(context.Context, string, func()) error { return errNotLinux }
