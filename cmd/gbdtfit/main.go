// Command gbdtfit trains a GBDT model on a CSV dataset and reports
// train/test metrics, the way cmd/iris demonstrated the single-tree
// predecessor library end to end.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/ahmedaabouzied/gbdt"
)

func main() {
	dataFile := flag.String("data", "", "path to a CSV dataset (required)")
	targetCol := flag.Int("target", -1, "target column index, -1 for last column")
	hasHeader := flag.Bool("header", true, "whether the CSV has a header row")
	modelOut := flag.String("model", "model.json", "path to write the fitted model")
	boostType := flag.String("boost-type", "gbtree", `boosting regime: "gbtree" or "dart"`)
	objective := flag.String("objective", "mse", `loss function: "mse" or "logloss"`)
	maxIter := flag.Int("iterations", 50, "number of boosting rounds")
	maxDepth := flag.Int("max-depth", 5, "maximum tree depth")
	stepSize := flag.Float64("step-size", 0.1, "shrinkage applied to each tree")
	testRatio := flag.Float64("test-ratio", 0.2, "fraction of rows held out for evaluation")
	seed := flag.Int64("seed", 42, "random seed for the train/test split and training")
	flag.Parse()

	if *dataFile == "" {
		fmt.Println("usage: gbdtfit -data <path.csv> [flags]")
		flag.PrintDefaults()
		return
	}

	ds, err := gbdt.LoadCSV(*dataFile, *targetCol, *hasHeader)
	if err != nil {
		log.Fatalf("loading %s: %v", *dataFile, err)
	}
	fmt.Printf("Loaded %d samples, %d features\n", len(ds.X), len(ds.X[0]))

	XTrain, XTest, yTrain, yTest, err := ds.Split(*testRatio, *seed)
	if err != nil {
		log.Fatalf("splitting dataset: %v", err)
	}
	fmt.Printf("Train: %d samples, Test: %d samples\n", len(XTrain), len(XTest))

	cfg := gbdt.DefaultBoostConfig()
	cfg.BoostType = *boostType
	cfg.MaxIter = *maxIter
	cfg.MaxDepth = *maxDepth
	cfg.StepSize = *stepSize
	cfg.Seed = *seed

	var obj gbdt.ObjFunc
	switch *objective {
	case "logloss":
		obj = gbdt.LogLossObjective{}
	case "mse":
		obj = gbdt.MSEObjective{}
	default:
		log.Fatalf("unknown -objective %q", *objective)
	}

	model := gbdt.New(cfg, obj)
	if catCols := ds.CategoricalColumns(); len(catCols) > 0 {
		model.SetCategoricalColumns(catCols)
	}
	if *objective == "logloss" {
		model.AddMetric(gbdt.MetricSpec{Name: "logloss", Fn: gbdt.LogLoss, LowerIsBetter: true})
		model.AddMetric(gbdt.MetricSpec{Name: "accuracy", Fn: gbdt.Accuracy, LowerIsBetter: false})
	} else {
		model.AddMetric(gbdt.MetricSpec{Name: "rmse", Fn: gbdt.RMSE, LowerIsBetter: true})
	}

	fmt.Println("\n--- Hyperparameters ---")
	fmt.Printf("BoostType: %s\n", cfg.BoostType)
	fmt.Printf("Objective: %s\n", *objective)
	fmt.Printf("MaxIter:   %d\n", cfg.MaxIter)
	fmt.Printf("MaxDepth:  %d\n", cfg.MaxDepth)
	fmt.Printf("StepSize:  %.3f\n", cfg.StepSize)

	if err := model.Fit(XTrain, yTrain, XTest, yTest); err != nil {
		log.Fatalf("fit: %v", err)
	}
	fmt.Printf("\nTrained %d trees over %d rounds\n", model.NumTrees(), len(model.TrainHistory))

	if len(model.TestHistory) > 0 {
		fmt.Println("\n--- Final Test Metrics ---")
		for name, v := range model.TestHistory[len(model.TestHistory)-1] {
			fmt.Printf("  %-10s %.4f\n", name, v)
		}
	}

	if err := model.Save(*modelOut); err != nil {
		log.Fatalf("saving model to %s: %v", *modelOut, err)
	}
	fmt.Printf("\nSaved model to %s\n", *modelOut)
}
