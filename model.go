package gbdt

import (
	"encoding/json"
	"os"

	"github.com/ahmedaabouzied/gbdt/discretize"
	"github.com/ahmedaabouzied/gbdt/internal/tree"
)

// wireTree is one tree's persisted form: its PreOrder-linearized node list
// and the output index (0..rawSize-1) it contributes to, per spec.md §6
// "Tree serialization: pre-order traversal of (kind, payload, leftWeight?,
// rightWeight?)" — approximated here by reusing tree.Node's tagged-variant
// fields directly rather than a hand-rolled compact wire format, since JSON
// already gives a legible, versionable encoding of the same information.
type wireTree struct {
	OutputIndex int         `json:"outputIndex"`
	Nodes       []tree.Node `json:"nodes"`
}

// GBDTModel is the persisted model layout spec.md §6 names: {objFuncName,
// rawBaseScore[], discretizer, trees[], weights[], metadata}.
type GBDTModel struct {
	ObjFuncName  string            `json:"objFuncName"`
	RawBaseScore []float64         `json:"rawBaseScore"`
	Discretizer  *discretizerState `json:"discretizer"`
	Trees        []wireTree        `json:"trees"`
	Weights      []float64         `json:"weights"`
	Metadata     map[string]string `json:"metadata"`
}

// discretizerState mirrors discretize.EqualWidth's fitted state (all of its
// fields are already exported for exactly this reason).
type discretizerState struct {
	MaxBins       int                  `json:"maxBins"`
	ZeroAsMissing bool                 `json:"zeroAsMissing"`
	CatCols       map[int]bool         `json:"catCols"`
	Mins          []float64            `json:"mins"`
	Maxs          []float64            `json:"maxs"`
	CatBins       []map[float64]uint32 `json:"catBins"`
	NumCols       int                  `json:"numCols"`
	Fitted        bool                 `json:"fitted"`
}

// Export snapshots a fitted GBM into the persisted model layout.
func (g *GBM) Export() (*GBDTModel, error) {
	if !g.fitted {
		return nil, ErrModelNotFitted
	}
	m := &GBDTModel{
		ObjFuncName:  g.Obj.Name(),
		RawBaseScore: append([]float64(nil), g.rawBase...),
		Weights:      append([]float64(nil), g.weights...),
		Metadata:     map[string]string{"boostType": g.Config.BoostType},
	}
	if d, ok := g.discretizer.(*discretize.EqualWidth); ok {
		m.Discretizer = &discretizerState{
			MaxBins:       d.MaxBins,
			ZeroAsMissing: d.ZeroAsMissing,
			CatCols:       d.CatCols,
			Mins:          d.Mins,
			Maxs:          d.Maxs,
			CatBins:       d.CatBins,
			NumCols:       d.NumCols,
			Fitted:        d.Fitted,
		}
	}
	m.Trees = make([]wireTree, len(g.trees))
	for i, t := range g.trees {
		m.Trees[i] = wireTree{OutputIndex: g.outputIdx[i], Nodes: t.PreOrder()}
	}
	return m, nil
}

// Import rebuilds a GBM (sufficient for Predict, not further Fit calls) from
// a persisted GBDTModel plus the objective it was trained with.
func Import(m *GBDTModel, obj ObjFunc) *GBM {
	g := &GBM{Config: DefaultBoostConfig(), Obj: obj, fitted: true}
	g.rawBase = append([]float64(nil), m.RawBaseScore...)
	g.weights = append([]float64(nil), m.Weights...)
	g.trees = make([]*tree.Model, len(m.Trees))
	g.outputIdx = make([]int, len(m.Trees))
	for i, wt := range m.Trees {
		g.trees[i] = tree.FromPreOrder(wt.Nodes)
		g.outputIdx[i] = wt.OutputIndex
	}
	if m.Discretizer != nil {
		g.discretizer = &discretize.EqualWidth{
			MaxBins:       m.Discretizer.MaxBins,
			ZeroAsMissing: m.Discretizer.ZeroAsMissing,
			CatCols:       m.Discretizer.CatCols,
			Mins:          m.Discretizer.Mins,
			Maxs:          m.Discretizer.Maxs,
			CatBins:       m.Discretizer.CatBins,
			NumCols:       m.Discretizer.NumCols,
			Fitted:        m.Discretizer.Fitted,
		}
	}
	return g
}

// Save writes the model's persisted layout to path as JSON.
func (g *GBM) Save(path string) error {
	m, err := g.Export()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Load reads a persisted model back from path, pairing it with obj (the
// same ObjFunc it was trained with — the objFuncName field is metadata for
// the caller to check, not used to reconstruct the interface value).
func Load(path string, obj ObjFunc) (*GBM, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m GBDTModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return Import(&m, obj), nil
}
