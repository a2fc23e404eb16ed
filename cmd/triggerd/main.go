package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/mdobak/go-xerrors"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			err := xerrors.New(err)
			slog.Default().Error("triggerd exited", slog.Any("error", err))
		}
		os.Exit(1)
	}
}
