// Package gbdt implements the core training engine of a distributed
// Gradient Boosting Decision Tree library: histogram-based split finding
// over pre-binned features, row-partitioned data-parallel tree growing, and
// both "gbtree" and "dart" boosting regimes.
//
// The engine does not assume threads directly; all parallelism runs through
// internal/cluster's partitioned Dataset[T] abstraction, so the shape of a
// training round (sample -> histogram -> split -> route) is the same
// whether one partition or many are in play.
//
// # Quick Start
//
// Train a regressor:
//
//	cfg := gbdt.DefaultBoostConfig()
//	cfg.MaxIter = 50
//	model := gbdt.New(cfg, gbdt.MSEObjective{})
//	if err := model.Fit(X, y, nil, nil); err != nil {
//		log.Fatal(err)
//	}
//	preds, err := model.Predict(X)
//
// Train a binary classifier with DART:
//
//	cfg := gbdt.DefaultBoostConfig()
//	cfg.BoostType = "dart"
//	model := gbdt.New(cfg, gbdt.LogLossObjective{})
//	model.Fit(X, y, nil, nil) // y values must be 0.0 or 1.0
//	probs, err := model.Predict(X)
//
// # Loading Data
//
// Load a CSV file with automatic label encoding for non-numeric columns:
//
//	ds, err := gbdt.LoadCSV("data.csv", -1, true) // -1 = last column is target
//	XTrain, XTest, yTrain, yTest, err := ds.Split(0.2, 42)
//
// # Persistence
//
// Save and load trained models as JSON:
//
//	model.Save("model.json")
//	loaded, err := gbdt.Load("model.json", gbdt.MSEObjective{})
package gbdt
