package ml

import (
	"math"
	"math/rand"
)

// eulerGamma constante de Euler-Mascheroni
const eulerGamma = 0.5772156649

// Node nó de uma árvore de isolamento. Serializável em JSON.
type Node struct {
	Feature int     `json:"f,omitempty"`
	Split   float64 `json:"s,omitempty"`
	Left    *Node   `json:"l,omitempty"`
	Right   *Node   `json:"r,omitempty"`
	Size    int     `json:"n"`
	Leaf    bool    `json:"leaf,omitempty"`
}

// ForestParams parâmetros de construção do ensemble
type ForestParams struct {
	Trees         int
	SubsampleSize int
	Seed          int64
}

// BuildForest constrói o ensemble sobre os pontos já padronizados.
// Todos os pontos devem ter a mesma dimensão.
func BuildForest(points [][]float64, params ForestParams) []*Node {
	rng := rand.New(rand.NewSource(params.Seed))

	sampleSize := params.SubsampleSize
	if sampleSize <= 0 || sampleSize > len(points) {
		sampleSize = len(points)
	}
	maxDepth := MaxDepth(sampleSize)

	trees := make([]*Node, 0, params.Trees)
	for i := 0; i < params.Trees; i++ {
		sample := sampleData(rng, points, sampleSize)
		trees = append(trees, buildTree(rng, sample, 0, maxDepth))
	}
	return trees
}

// MaxDepth profundidade máxima: ceil(log2(n))
func MaxDepth(n int) int {
	if n <= 1 {
		return 0
	}
	return int(math.Ceil(math.Log2(float64(n))))
}

// sampleData amostra sem reposição (Fisher-Yates parcial)
func sampleData(rng *rand.Rand, points [][]float64, size int) [][]float64 {
	shuffled := make([][]float64, len(points))
	copy(shuffled, points)

	for i := 0; i < size; i++ {
		j := i + rng.Intn(len(shuffled)-i)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}

	return shuffled[:size]
}

func buildTree(rng *rand.Rand, data [][]float64, depth, maxDepth int) *Node {
	if len(data) <= 1 || depth >= maxDepth || allIdentical(data) {
		return &Node{Size: len(data), Leaf: true}
	}

	// Sorteia feature com amplitude > 0
	numFeatures := len(data[0])
	feature := rng.Intn(numFeatures)
	minVal, maxVal := featureRange(data, feature)
	for attempts := 0; maxVal == minVal && attempts < numFeatures; attempts++ {
		feature = (feature + 1) % numFeatures
		minVal, maxVal = featureRange(data, feature)
	}

	split := minVal + rng.Float64()*(maxVal-minVal)
	left, right := splitData(data, feature, split)

	// Split não particionou: vira folha
	if len(left) == 0 || len(right) == 0 {
		return &Node{Size: len(data), Leaf: true}
	}

	return &Node{
		Feature: feature,
		Split:   split,
		Left:    buildTree(rng, left, depth+1, maxDepth),
		Right:   buildTree(rng, right, depth+1, maxDepth),
		Size:    len(data),
	}
}

// PathLength comprimento do caminho de point na árvore, com ajuste c(n) na folha
func PathLength(node *Node, point []float64) float64 {
	depth := 0
	for !node.Leaf {
		if point[node.Feature] < node.Split {
			node = node.Left
		} else {
			node = node.Right
		}
		depth++
	}
	return float64(depth) + AveragePathLength(node.Size)
}

// AveragePathLength c(n) = 2H(n-1) - 2(n-1)/n, comprimento médio de busca sem sucesso em BST
func AveragePathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	return 2*harmonicNumber(n-1) - 2*float64(n-1)/float64(n)
}

// harmonicNumber H(n) ≈ ln(n) + γ
func harmonicNumber(n int) float64 {
	return math.Log(float64(n)) + eulerGamma
}

// AveragePath média do comprimento do caminho no ensemble. Menor = mais anômalo.
func AveragePath(trees []*Node, point []float64) float64 {
	if len(trees) == 0 {
		return 0
	}
	total := 0.0
	for _, tree := range trees {
		total += PathLength(tree, point)
	}
	return total / float64(len(trees))
}

func allIdentical(data [][]float64) bool {
	first := data[0]
	for _, point := range data[1:] {
		for j := range first {
			if math.Abs(point[j]-first[j]) > 1e-10 {
				return false
			}
		}
	}
	return true
}

func featureRange(data [][]float64, feature int) (float64, float64) {
	minVal := data[0][feature]
	maxVal := data[0][feature]
	for _, point := range data {
		v := point[feature]
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	return minVal, maxVal
}

func splitData(data [][]float64, feature int, split float64) ([][]float64, [][]float64) {
	left := make([][]float64, 0, len(data))
	right := make([][]float64, 0, len(data))
	for _, point := range data {
		if point[feature] < split {
			left = append(left, point)
		} else {
			right = append(right, point)
		}
	}
	return left, right
}
