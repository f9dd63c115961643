// Package console collects the text lines a client produces for display.
//
// [Log] is a bounded, thread-safe line store that can be registered directly
// as a client event handler. [Buffer] coalesces lines into larger blocks on
// a fixed interval so a slow terminal or UI is not woken for every line.
//
// # Usage
//
//	out := console.NewBuffer(console.DefaultFlushBytes, func(block string) {
//	    fmt.Fprint(os.Stdout, block)
//	})
//	out.Start(ctx)
//	defer out.Close()
//
//	lines := console.NewLog(console.DefaultMaxLines)
//	lines.AddListener(out)
//	c, err := locolink.New(cfg, locolink.WithHandler(lines))
package console
