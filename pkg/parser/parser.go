// Package parser reads undirected graphs from whitespace-separated edge lists.
//
// Each non-empty line holds "u v" or "u v w" with non-negative integer node
// ids and an optional float weight. Lines starting with '#' or '%' are
// comments. The node count is one more than the largest id seen, unless a
// larger count is fixed up front.
package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/gilchrisn/mcmc-coloring-service/pkg/graph"
)

// ErrSyntax is returned for lines that are not a valid edge.
var ErrSyntax = errors.New("invalid edge list line")

// EdgeListReader parses an edge list from an io.Reader. It implements
// graph.Importer.
type EdgeListReader struct {
	r         io.Reader
	nodeCount uint32
}

// Option configures an EdgeListReader.
type Option func(*EdgeListReader)

// WithNodeCount fixes the node count, so trailing isolated nodes survive.
// Ids at or beyond n are rejected.
func WithNodeCount(n uint32) Option {
	return func(er *EdgeListReader) { er.nodeCount = n }
}

// NewEdgeListReader wraps r.
func NewEdgeListReader(r io.Reader, opts ...Option) *EdgeListReader {
	er := &EdgeListReader{r: r}
	for _, opt := range opts {
		opt(er)
	}
	return er
}

// Import reads the whole stream.
func (er *EdgeListReader) Import() (*graph.EdgeList, error) {
	list := &graph.EdgeList{}
	maxNode := int64(-1)
	var hasWeight []bool

	scanner := bufio.NewScanner(er.r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "%") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("%w %d: expected 2 or 3 fields, got %d", ErrSyntax, lineNo, len(parts))
		}
		u, err := parseNode(parts[0])
		if err != nil {
			return nil, fmt.Errorf("%w %d: %v", ErrSyntax, lineNo, err)
		}
		v, err := parseNode(parts[1])
		if err != nil {
			return nil, fmt.Errorf("%w %d: %v", ErrSyntax, lineNo, err)
		}

		e := graph.Edge{U: u, V: v}
		if len(parts) == 3 {
			w, err := strconv.ParseFloat(parts[2], 32)
			if err != nil {
				return nil, fmt.Errorf("%w %d: bad weight %q", ErrSyntax, lineNo, parts[2])
			}
			e.Weight = float32(w)
			list.Weighted = true
		}
		list.Edges = append(list.Edges, e)
		hasWeight = append(hasWeight, len(parts) == 3)

		if int64(u) > maxNode {
			maxNode = int64(u)
		}
		if int64(v) > maxNode {
			maxNode = int64(v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if er.nodeCount > 0 {
		if maxNode >= int64(er.nodeCount) {
			return nil, fmt.Errorf("%w: node %d out of range for %d nodes", ErrSyntax, maxNode, er.nodeCount)
		}
		list.NodeCount = er.nodeCount
	} else {
		list.NodeCount = uint32(maxNode + 1)
	}

	// Unweighted lines in a weighted file get unit weight; an explicit 0 stays.
	if list.Weighted {
		for i := range list.Edges {
			if !hasWeight[i] {
				list.Edges[i].Weight = 1
			}
		}
	}
	return list, nil
}

// FileImporter reads an edge list file on Import.
type FileImporter struct {
	Path string
	Opts []Option
}

// Import opens the file and parses it.
func (fi FileImporter) Import() (*graph.EdgeList, error) {
	file, err := os.Open(fi.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return NewEdgeListReader(file, fi.Opts...).Import()
}

// ReadGraphFromFile builds a host graph straight from an edge list file.
func ReadGraphFromFile(path string, opts ...Option) (*graph.Host, error) {
	return graph.NewFromImporter(FileImporter{Path: path, Opts: opts})
}

func parseNode(s string) (uint32, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad node id %q", s)
	}
	if id == math.MaxUint32 {
		return 0, fmt.Errorf("node id %d too large", id)
	}
	return uint32(id), nil
}
