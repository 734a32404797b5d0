package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/intelliquery/backend/internal/evaluation"
	"github.com/intelliquery/backend/internal/llm"
	"github.com/intelliquery/backend/pkg/config"
	appLogger "github.com/intelliquery/backend/pkg/logger"
)

func main() {
	flags := pflag.NewFlagSet("evaluate", pflag.ExitOnError)
	flags.String("config", "", "path to a config file")
	datasetPath := flags.String("dataset", "eval/intents.json", "labelled questions to evaluate")
	timeout := flags.Duration("timeout", 10*time.Minute, "overall evaluation timeout")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	data, err := os.ReadFile(*datasetPath)
	if err != nil {
		appLogger.Fatal("Failed to read dataset", zap.String("path", *datasetPath), zap.Error(err))
	}

	dataset, err := evaluation.LoadDatasetFromJSON(data)
	if err != nil {
		appLogger.Fatal("Failed to parse dataset", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	evaluator := evaluation.NewEvaluator(llm.NewClient(cfg.LLM))
	report, err := evaluator.RunDatasetEvaluation(ctx, dataset)
	if err != nil {
		appLogger.Fatal("Evaluation failed", zap.Error(err))
	}

	fmt.Print(evaluation.GenerateReport(report))
}
