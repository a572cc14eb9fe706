package export

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"RegimeML/internal/services/ml"
)

// Field numbers and enum values of the ONNX protobuf schema (onnx.proto).
const (
	modelIRVersion       = 1
	modelProducerName    = 2
	modelProducerVersion = 3
	modelDocString       = 6
	modelGraph           = 7
	modelOpsetImport     = 8

	opsetDomain  = 1
	opsetVersion = 2

	graphNode   = 1
	graphName   = 2
	graphInput  = 11
	graphOutput = 12

	nodeInput     = 1
	nodeOutput    = 2
	nodeName      = 3
	nodeOpType    = 4
	nodeAttribute = 5
	nodeDomain    = 7

	attrName    = 1
	attrString  = 4
	attrFloats  = 7
	attrInts    = 8
	attrStrings = 9
	attrType    = 20

	attrTypeString  = 3
	attrTypeFloats  = 6
	attrTypeInts    = 7
	attrTypeStrings = 8

	valueInfoName = 1
	valueInfoType = 2

	typeTensor = 1

	tensorElemType = 1
	tensorShape    = 2

	shapeDim = 1

	dimValue = 1
	dimParam = 2

	elemFloat = 1
	elemInt64 = 7
)

const (
	onnxIRVersion = 7
	mlDomain      = "ai.onnx.ml"
	inputName     = "float_input"
	labelName     = "label"
	probaName     = "probabilities"
	producerName  = "RegimeML"
)

// EncodeForestONNX serializes the forest as an ONNX model holding a single
// TreeEnsembleClassifier. Input float_input is float[N, features]; outputs
// are label int64[N] and probabilities float[N, classes]. Thresholds are in
// the scaled feature space, so callers standardize before inference.
func EncodeForestONNX(f *ml.Forest, features, opset int, version string) ([]byte, error) {
	if f == nil || len(f.Trees) == 0 {
		return nil, fmt.Errorf("forest has no trees")
	}
	attrs, err := treeEnsembleAttributes(f, features)
	if err != nil {
		return nil, err
	}

	var node []byte
	node = appendString(node, nodeInput, inputName)
	node = appendString(node, nodeOutput, labelName)
	node = appendString(node, nodeOutput, probaName)
	node = appendString(node, nodeName, "RegimeForest")
	node = appendString(node, nodeOpType, "TreeEnsembleClassifier")
	for _, a := range attrs {
		node = protowire.AppendTag(node, nodeAttribute, protowire.BytesType)
		node = protowire.AppendBytes(node, a)
	}
	node = appendString(node, nodeDomain, mlDomain)

	var graph []byte
	graph = protowire.AppendTag(graph, graphNode, protowire.BytesType)
	graph = protowire.AppendBytes(graph, node)
	graph = appendString(graph, graphName, "regime_forest")
	graph = appendMessage(graph, graphInput, valueInfo(inputName, elemFloat, -1, features))
	graph = appendMessage(graph, graphOutput, valueInfo(labelName, elemInt64, -1))
	graph = appendMessage(graph, graphOutput, valueInfo(probaName, elemFloat, -1, f.NClasses))

	var model []byte
	model = protowire.AppendTag(model, modelIRVersion, protowire.VarintType)
	model = protowire.AppendVarint(model, onnxIRVersion)
	model = appendString(model, modelProducerName, producerName)
	model = appendString(model, modelProducerVersion, version)
	model = appendString(model, modelDocString, "bagged regime classifier over standardized features")
	model = appendMessage(model, modelGraph, graph)
	model = appendMessage(model, modelOpsetImport, opsetImport("", opset))
	model = appendMessage(model, modelOpsetImport, opsetImport(mlDomain, 1))
	return model, nil
}

func treeEnsembleAttributes(f *ml.Forest, features int) ([][]byte, error) {
	var (
		nodeTree, nodeID, featID, trueID, falseID []int64
		values, hitrates                          []float32
		missingTrue                               []int64
		modes                                     []string
		classTree, classNode, classID             []int64
		classWeights                              []float32
	)
	share := 1 / float64(len(f.Trees))
	for ti := range f.Trees {
		t := &f.Trees[ti]
		if err := t.Validate(features, f.NClasses); err != nil {
			return nil, fmt.Errorf("tree %d: %w", ti, err)
		}
		for n := 0; n < t.NodeCount(); n++ {
			nodeTree = append(nodeTree, int64(ti))
			nodeID = append(nodeID, int64(n))
			hitrates = append(hitrates, 1)
			missingTrue = append(missingTrue, 0)
			if t.IsLeaf(n) {
				modes = append(modes, "LEAF")
				featID = append(featID, 0)
				values = append(values, 0)
				trueID = append(trueID, 0)
				falseID = append(falseID, 0)
				for c, p := range t.Value[n] {
					classTree = append(classTree, int64(ti))
					classNode = append(classNode, int64(n))
					classID = append(classID, int64(c))
					classWeights = append(classWeights, float32(p*share))
				}
				continue
			}
			th := t.Threshold[n]
			if math.IsNaN(th) || math.IsInf(th, 0) {
				return nil, fmt.Errorf("tree %d node %d: non-finite threshold", ti, n)
			}
			modes = append(modes, "BRANCH_LEQ")
			featID = append(featID, int64(t.Feature[n]))
			values = append(values, float32(th))
			trueID = append(trueID, int64(t.Left[n]))
			falseID = append(falseID, int64(t.Right[n]))
		}
	}
	labels := make([]int64, f.NClasses)
	for c := range labels {
		labels[c] = int64(c)
	}
	return [][]byte{
		intsAttr("class_ids", classID),
		intsAttr("class_nodeids", classNode),
		intsAttr("class_treeids", classTree),
		floatsAttr("class_weights", classWeights),
		intsAttr("classlabels_int64s", labels),
		intsAttr("nodes_falsenodeids", falseID),
		intsAttr("nodes_featureids", featID),
		floatsAttr("nodes_hitrates", hitrates),
		intsAttr("nodes_missing_value_tracks_true", missingTrue),
		stringsAttr("nodes_modes", modes),
		intsAttr("nodes_nodeids", nodeID),
		intsAttr("nodes_treeids", nodeTree),
		intsAttr("nodes_truenodeids", trueID),
		floatsAttr("nodes_values", values),
		stringAttr("post_transform", "NONE"),
	}, nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func opsetImport(domain string, version int) []byte {
	var b []byte
	b = appendString(b, opsetDomain, domain)
	b = protowire.AppendTag(b, opsetVersion, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(version))
}

// valueInfo describes a tensor; a negative dim becomes the symbolic batch
// dimension "N".
func valueInfo(name string, elem uint64, dims ...int) []byte {
	var shape []byte
	for _, d := range dims {
		var dim []byte
		if d < 0 {
			dim = appendString(dim, dimParam, "N")
		} else {
			dim = protowire.AppendTag(dim, dimValue, protowire.VarintType)
			dim = protowire.AppendVarint(dim, uint64(d))
		}
		shape = appendMessage(shape, shapeDim, dim)
	}
	var tensor []byte
	tensor = protowire.AppendTag(tensor, tensorElemType, protowire.VarintType)
	tensor = protowire.AppendVarint(tensor, elem)
	tensor = appendMessage(tensor, tensorShape, shape)

	var typ []byte
	typ = appendMessage(typ, typeTensor, tensor)

	var vi []byte
	vi = appendString(vi, valueInfoName, name)
	return appendMessage(vi, valueInfoType, typ)
}

func intsAttr(name string, vs []int64) []byte {
	var b []byte
	b = appendString(b, attrName, name)
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, uint64(v))
	}
	b = appendMessage(b, attrInts, packed)
	b = protowire.AppendTag(b, attrType, protowire.VarintType)
	return protowire.AppendVarint(b, attrTypeInts)
}

func floatsAttr(name string, vs []float32) []byte {
	var b []byte
	b = appendString(b, attrName, name)
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendFixed32(packed, math.Float32bits(v))
	}
	b = appendMessage(b, attrFloats, packed)
	b = protowire.AppendTag(b, attrType, protowire.VarintType)
	return protowire.AppendVarint(b, attrTypeFloats)
}

func stringsAttr(name string, vs []string) []byte {
	var b []byte
	b = appendString(b, attrName, name)
	for _, v := range vs {
		b = appendString(b, attrStrings, v)
	}
	b = protowire.AppendTag(b, attrType, protowire.VarintType)
	return protowire.AppendVarint(b, attrTypeStrings)
}

func stringAttr(name, v string) []byte {
	var b []byte
	b = appendString(b, attrName, name)
	b = appendString(b, attrString, v)
	b = protowire.AppendTag(b, attrType, protowire.VarintType)
	return protowire.AppendVarint(b, attrTypeString)
}
