// Command test-events publishes synthetic score and play events to kafka
// for exercising the pipeline. A configurable share of users are "bots"
// whose score follows the play action almost instantly; everyone else takes
// human-scale seconds.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	timestampHeader = "timestamp_ms"
	uniqueIDHeader  = "unique_id"
)

var teams = []string{"AzureBilby", "CrimsonNumbat", "EmeraldQuokka", "AmberBilby", "VioletDingo"}

func main() {
	var (
		brokers    = flag.String("brokers", "localhost:9092", "comma separated kafka brokers")
		scoreTopic = flag.String("score-topic", "game-scores", "score events topic")
		playTopic  = flag.String("play-topic", "game-plays", "play events topic")
		users      = flag.Int("users", 50, "number of simulated users")
		botRatio   = flag.Float64("bot-ratio", 0.1, "fraction of users behaving like bots")
		rate       = flag.Duration("rate", 200*time.Millisecond, "delay between interactions")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addrs := strings.Split(*brokers, ",")
	scores := &kafka.Writer{Addr: kafka.TCP(addrs...), Topic: *scoreTopic, Balancer: &kafka.LeastBytes{}}
	plays := &kafka.Writer{Addr: kafka.TCP(addrs...), Topic: *playTopic, Balancer: &kafka.LeastBytes{}}
	defer func() {
		_ = scores.Close()
		_ = plays.Close()
	}()

	rng := rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // load generator
	bots := int(float64(*users) * *botRatio)

	fmt.Fprintf(os.Stdout, "publishing interactions for %d users (%d bots) to %s\n", *users, bots, *brokers)

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(*rate):
		}

		userIdx := rng.Intn(*users)
		user := "user-" + strconv.Itoa(userIdx)
		team := teams[userIdx%len(teams)]
		eventID := uuid.NewString()

		// One interaction: a play action, then its score event. Bots react
		// in tens of milliseconds; humans take seconds.
		playTime := time.Now().Add(-time.Duration(rng.Intn(2000)) * time.Millisecond)
		var latency time.Duration
		if userIdx < bots {
			latency = time.Duration(10+rng.Intn(40)) * time.Millisecond
		} else {
			latency = time.Duration(5+rng.Intn(15)) * time.Second
		}
		scoreTime := playTime.Add(latency)
		score := 1 + rng.Intn(20)

		playLine := fmt.Sprintf("%s,%d,%s,%s", user, playTime.UnixMilli(), playTime.Format(time.RFC3339), eventID)
		scoreLine := fmt.Sprintf("%s,%s,%d,%d,%s,%s", user, team, score, scoreTime.UnixMilli(), scoreTime.Format(time.RFC3339), eventID)

		if err := publish(ctx, plays, eventID, playLine, playTime); err != nil {
			fmt.Fprintf(os.Stderr, "publish play: %v\n", err)
		}
		if err := publish(ctx, scores, eventID, scoreLine, scoreTime); err != nil {
			fmt.Fprintf(os.Stderr, "publish score: %v\n", err)
		}
	}
}

func publish(ctx context.Context, w *kafka.Writer, key, line string, eventTime time.Time) error {
	return w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: []byte(line),
		Headers: []kafka.Header{
			{Key: timestampHeader, Value: []byte(strconv.FormatInt(eventTime.UnixMilli(), 10))},
			{Key: uniqueIDHeader, Value: []byte(uuid.NewString())},
		},
	})
}
