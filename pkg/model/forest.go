package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	featureHour = 0
	featureLoad = 1
)

// forestNode is one node of a tree exported from the offline trainer. Leaves
// have Feature < 0 and carry the predicted Class. Internal nodes send a sample
// left when its feature value is <= Threshold.
type forestNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Class     int     `json:"class"`
}

type forestTree struct {
	Nodes []forestNode `json:"nodes"`
}

type forestFile struct {
	Features []string     `json:"features"`
	Trees    []forestTree `json:"trees"`
}

// Forest is a tree ensemble over the features [hour, load] that votes on the
// shutdown class (1) versus keep-on (0). Ties keep the plug on.
type Forest struct {
	trees []forestTree
}

// LoadForestFile reads a serialized forest from path.
func LoadForestFile(path string) (*Forest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model file: %w", err)
	}
	defer f.Close()
	return LoadForest(f)
}

// LoadForest decodes and validates a serialized forest.
func LoadForest(r io.Reader) (*Forest, error) {
	var ff forestFile
	if err := json.NewDecoder(r).Decode(&ff); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}
	if len(ff.Features) != 0 && len(ff.Features) != 2 {
		return nil, fmt.Errorf("model expects 2 features, file declares %d", len(ff.Features))
	}
	if len(ff.Trees) == 0 {
		return nil, errors.New("model has no trees")
	}
	for i, t := range ff.Trees {
		if err := t.validate(); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return &Forest{trees: ff.Trees}, nil
}

func (t forestTree) validate() error {
	if len(t.Nodes) == 0 {
		return errors.New("empty tree")
	}
	for i, n := range t.Nodes {
		if n.Feature < 0 {
			continue
		}
		if n.Feature != featureHour && n.Feature != featureLoad {
			return fmt.Errorf("node %d: unknown feature %d", i, n.Feature)
		}
		// children always come after their parent in an exported tree which
		// also rules out cycles
		if n.Left <= i || n.Left >= len(t.Nodes) || n.Right <= i || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d: child index out of range", i)
		}
	}
	return nil
}

func (t forestTree) predict(features [2]float64) int {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return n.Class
		}
		if features[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// ShouldShutdown implements Model.
func (f *Forest) ShouldShutdown(hour int, loadW float64) bool {
	features := [2]float64{float64(hour), loadW}
	var votes int
	for _, t := range f.trees {
		if t.predict(features) == 1 {
			votes++
		}
	}
	return votes*2 > len(f.trees)
}
