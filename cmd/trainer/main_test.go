package main

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vectorized-ppo/internal/config"
)

func TestRootCommandHasTrain(t *testing.T) {
	root := newRootCmd()
	train, _, err := root.Find([]string{"train"})
	if err != nil || train.Name() != "train" {
		t.Fatalf("train subcommand not found: %v", err)
	}
	for _, flag := range []string{"config", "seed", "log-level", "metrics-file", "metrics-db", "stats-addr"} {
		if train.Flags().Lookup(flag) == nil {
			t.Errorf("train command missing --%s flag", flag)
		}
	}
}

func TestRunTrainEndToEnd(t *testing.T) {
	cfg := config.Default()
	cfg.TotalTimesteps = 16 // 2 updates of 2 envs x 4 steps
	cfg.NumSteps = 4
	cfg.NumEnvs = 2
	cfg.NumMinibatches = 1
	cfg.UpdateEpochs = 1
	cfg.NormalizeEnv = false
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	metricsPath := filepath.Join(t.TempDir(), "metrics.jsonl")
	if err := runTrain(cfg, metricsPath, "", ""); err != nil {
		t.Fatalf("runTrain failed: %v", err)
	}

	f, err := os.Open(metricsPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	sawLoss := false
	for scanner.Scan() {
		lines++
		if strings.Contains(scanner.Text(), "total_loss") {
			sawLoss = true
		}
	}
	if lines < 2 {
		t.Errorf("expected at least one metrics line per update, got %d", lines)
	}
	if !sawLoss {
		t.Error("expected total_loss in emitted metrics")
	}
}

func TestRunTrainRejectsBadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("num_minibatches: 7\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := config.Load(path); err == nil {
		t.Fatal("expected a non-divisible config file to fail loading")
	}
}
