// Command concache-demo exercises a cache end to end: TTL expiry, the
// update callback stream, and a reentrant isolated section. It plays the
// same role as the teacher's standalone main package — a runnable sanity
// check, not a library entry point.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/concache/concache"
)

func main() {
	events := make(chan concache.Event[string, string], 16)

	c, err := concache.New[string, string](
		concache.WithTTLCheckInterval[string, string](50*time.Millisecond),
		concache.WithGlobalTTL[string, string](concache.Finite(200*time.Millisecond)),
		concache.WithTouchOnRead[string, string](true),
		concache.WithCallback(func(ev concache.Event[string, string]) { events <- ev }),
		concache.WithName[string, string]("demo"),
	)
	if err != nil {
		panic(err)
	}
	defer c.Close()

	ctx := context.Background()

	if err := c.Put(ctx, "greeting", "hello"); err != nil {
		panic(err)
	}
	if v, ok := c.Get("greeting"); ok {
		fmt.Println("get after put:", v)
	}

	err = c.Update(ctx, "greeting", func(_ context.Context, current string, present bool) (string, error) {
		if !present {
			return "", fmt.Errorf("expected greeting to exist")
		}
		return current + ", world", nil
	})
	if err != nil {
		panic(err)
	}

	_, _ = c.Isolated(ctx, "greeting", func(ctx context.Context) (any, error) {
		// Nested Isolated on the same key is reentrant, not a deadlock.
		return c.Isolated(ctx, "greeting", func(ctx context.Context) (any, error) {
			v, _ := c.Get("greeting")
			fmt.Println("isolated read:", v)
			return v, nil
		})
	})

	drain := time.After(300 * time.Millisecond)
loop:
	for {
		select {
		case ev := <-events:
			fmt.Printf("event: kind=%d key=%s value=%q\n", ev.Kind, ev.Key, ev.Value)
		case <-drain:
			break loop
		}
	}

	if _, ok := c.Get("greeting"); !ok {
		fmt.Println("expired as expected")
	}

	fmt.Printf("stats: %+v\n", c.Stats())
}
