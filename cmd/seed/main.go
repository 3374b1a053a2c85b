// Command main prints a seed world as YAML, optionally extended with generated
// users and posts. Point SEED_FILE at the output to serve it.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"snapgram/internal/seed"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, stdout io.Writer) (err error) {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	numUsers := fs.Int("users", 0, "Number of generated users to add")
	numPosts := fs.Int("posts", 0, "Number of generated posts to add")
	fakerSeed := fs.Int64("seed", 0, "Faker seed for reproducible output (0 = random)")
	maxDays := fs.Int("days", 90, "How many days back generated posts may be dated")
	base := fs.String("base", "", "Seed file to extend (default: built-in world)")
	out := fs.String("out", "", "Output file (default: stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	world, err := seed.LoadFile(*base)
	if err != nil {
		return fmt.Errorf("load base world: %w", err)
	}

	if *numUsers > 0 || *numPosts > 0 {
		world = seed.Generate(world, seed.GenerateOptions{
			Users:   *numUsers,
			Posts:   *numPosts,
			Seed:    *fakerSeed,
			MaxDays: *maxDays,
		})
		if err := world.Validate(); err != nil {
			return fmt.Errorf("generated world is inconsistent: %w", err)
		}
	}

	w := stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("create %s: %w", *out, err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("close %s: %w", *out, cerr))
			}
		}()
		w = f
	}

	buf := bufio.NewWriter(w)
	if err := seed.Encode(buf, world); err != nil {
		return fmt.Errorf("encode world: %w", err)
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("write world: %w", err)
	}
	if *out != "" {
		log.Printf("Wrote %d users and %d posts to %s", len(world.Users), len(world.Posts), *out)
	}
	return nil
}
