package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shelfpost/shelfpost/pkg/match"
)

func main() {
	log := logger.New()

	var opts struct {
		Title     string `short:"t" long:"title" required:"true" description:"Record title to match against"`
		Author    string `short:"a" long:"author" required:"true" description:"Record author to match against"`
		Threshold int    `long:"threshold" default:"50" description:"Minimum accepted score"`
	}

	args, err := flags.Parse(&opts)
	if err != nil {
		log.Err(err).Fatal("flags parse error")
	}

	filenames := args
	if len(filenames) == 0 {
		// read filenames from stdin, one per line
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := scanner.Text()
			if line != "" {
				filenames = append(filenames, line)
			}
		}
		if err := scanner.Err(); err != nil {
			log.Err(err).Fatal("stdin read error")
		}
	}

	if len(filenames) == 0 {
		fmt.Println("go run ./cmd/scripts/debug/match-file -t <title> -a <author> <filename> [filename...]")
		os.Exit(1)
	}

	candidates := match.TopCandidates(opts.Title, opts.Author, filenames)
	if len(candidates) == 0 {
		fmt.Println("no candidates scored above zero")
		return
	}

	for _, c := range candidates {
		marker := " "
		if c.Score >= opts.Threshold {
			marker = "*"
		}
		fmt.Printf("%s %4d  %s  matched=%v\n", marker, c.Score, c.Filename, c.MatchedTerms)
	}
}
