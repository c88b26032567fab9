package predictor

import (
	"github.com/gomlx/gomlx/pkg/core/graph"
)

// MaskedMSE returns a loss averaging the squared error over the positions
// whose label differs from paddingValue. Padded positions neither count in
// the mean nor produce a gradient.
func MaskedMSE(paddingValue float32) func(labels, predictions []*graph.Node) *graph.Node {
	return func(labels, predictions []*graph.Node) *graph.Node {
		label, pred := labels[0], predictions[0]
		valid := graph.NotEqual(label, graph.ConstAs(label, paddingValue))
		zeros := graph.ZerosLike(pred)

		sq := graph.Square(graph.Sub(pred, label))
		sq = graph.Where(valid, sq, zeros)
		count := graph.ReduceAllSum(graph.Where(valid, graph.OnesLike(pred), zeros))
		return graph.Div(graph.ReduceAllSum(sq), graph.Max(count, graph.OnesLike(count)))
	}
}
