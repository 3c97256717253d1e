// Package projection flattens the stored embedding space into 2D for the
// concept graph. Principal components stand in for a nonlinear embedding;
// the layout is recomputed from scratch on every request.
package projection

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/atomizerhq/atomizer/internal/apptype"
	"github.com/atomizerhq/atomizer/internal/metrics"
	"github.com/atomizerhq/atomizer/internal/vectorstore"
)

// Point is one projected record.
type Point struct {
	ID             string               `json:"id"`
	Position       [2]float64           `json:"position"`
	Metadata       vectorstore.Metadata `json:"metadata"`
	OriginalVector []float32            `json:"originalVector"`
}

// Projector builds concept-graph layouts from stored vectors.
type Projector struct {
	store *vectorstore.Store
	cap   int
}

// NewProjector creates a projector reading at most cap vectors per
// namespace (default 500).
func NewProjector(store *vectorstore.Store, cap int) *Projector {
	if cap <= 0 {
		cap = 500
	}
	return &Projector{store: store, cap: cap}
}

// Project reads the atoms and sources namespaces and lays every record out
// in 2D. No stored vectors yields an empty result, not an error.
func (p *Projector) Project(ctx context.Context) ([]Point, error) {
	done := metrics.TimePipeline("project")
	success := false
	defer func() { done(success) }()

	atoms, err := p.store.List(ctx, apptype.NamespaceAtoms, p.cap)
	if err != nil {
		return nil, err
	}
	sources, err := p.store.List(ctx, apptype.NamespaceSources, p.cap)
	if err != nil {
		return nil, err
	}
	records := append(atoms, sources...)

	points, err := projectRecords(records)
	if err != nil {
		return nil, err
	}
	success = true
	return points, nil
}

func projectRecords(records []vectorstore.Record) ([]Point, error) {
	if len(records) == 0 {
		return []Point{}, nil
	}
	dims := len(records[0].Vector)
	if dims == 0 {
		return []Point{}, nil
	}

	points := make([]Point, len(records))
	for i, r := range records {
		if len(r.Vector) != dims {
			return nil, fmt.Errorf("vector %q has %d dimensions, expected %d", r.ID, len(r.Vector), dims)
		}
		points[i] = Point{ID: r.ID, Metadata: r.Metadata, OriginalVector: r.Vector}
	}

	// Principal components need more than one observation; a lone record
	// sits at the origin.
	if len(records) == 1 {
		return points, nil
	}

	data := mat.NewDense(len(records), dims, nil)
	for i, r := range records {
		for j, v := range r.Vector {
			data.Set(i, j, float64(v))
		}
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(data, nil); !ok {
		return nil, fmt.Errorf("principal component decomposition failed")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)

	k := 2
	if dims < k {
		k = dims
	}
	var proj mat.Dense
	proj.Mul(data, vecs.Slice(0, dims, 0, k))

	for i := range points {
		points[i].Position[0] = proj.At(i, 0)
		if k > 1 {
			points[i].Position[1] = proj.At(i, 1)
		}
	}
	return points, nil
}
