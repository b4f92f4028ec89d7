package main

import (
	"context"
	"fmt"
	"os"

	"github.com/datawire/dlib/dcontext"
	"github.com/datawire/dlib/derror"
	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
)

func main() {
	ctx := dcontext.WithSoftness(dcontext.HardContext(context.Background()))
	ctx = dgroup.WithGoroutineName(ctx, "/linklayer")

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "linklayer:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) (err error) {
	defer func() {
		if perr := derror.PanicToError(recover()); perr != nil {
			dlog.Errorf(ctx, "panic: %v", perr)
			err = perr
		}
	}()

	root := newRootCommand()
	root.SetContext(ctx)
	return root.Execute()
}
