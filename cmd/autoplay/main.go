package main

import (
	"flag"
	"log"
	"math/rand"
	"os"
	"time"

	"blockfall/internal/audio"
	"blockfall/internal/session"
)

func main() {
	cfg := session.DefaultAutoPlayConfig()

	seed := flag.Int64("seed", 0, "piece seed (0 = time-based)")
	width := flag.Int("width", cfg.Width, "board width")
	height := flag.Int("height", cfg.Height, "board height")
	maxMoves := flag.Int("moves", cfg.MaxMoves, "stop after this many commands (0 = until game over)")
	tickEvery := flag.Int("tick", cfg.TickEvery, "gravity tick after this many commands")
	delay := flag.Int("delay", 0, "delay between moves (ms)")
	sounds := flag.Bool("sounds", false, "log sound cues")
	quiet := flag.Bool("quiet", false, "suppress progress output")
	flag.Parse()

	if *seed != 0 {
		cfg.Seed = *seed
	}
	cfg.Width = *width
	cfg.Height = *height
	cfg.MaxMoves = *maxMoves
	cfg.TickEvery = *tickEvery
	cfg.Delay = time.Duration(*delay) * time.Millisecond
	cfg.Verbose = !*quiet
	if *sounds {
		cfg.Sink = audio.LogSink{}
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	res, err := session.AutoPlay(os.Stdout, rng, cfg)
	if err != nil {
		log.Fatalf("❌ AutoPlay failed: %v", err)
	}
	log.Printf("🏁 seed=%d score=%d lines=%d level=%d moves=%d", cfg.Seed, res.Score, res.Lines, res.Level, res.Moves)
}
