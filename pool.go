package understory

import sitter "github.com/smacker/go-tree-sitter"

// ParserPool is an explicit free list of parser objects. Parsers are cheap
// to reconfigure but not to allocate, so callers processing many documents
// on one goroutine can share a pool instead of relying on hidden
// thread-local caches. A pool is not safe for concurrent use; give each
// goroutine its own.
type ParserPool struct {
	free []*sitter.Parser
}

// NewParserPool returns an empty pool.
func NewParserPool() *ParserPool {
	return &ParserPool{}
}

// Get returns a pooled parser, allocating one if the pool is empty.
func (p *ParserPool) Get() *sitter.Parser {
	if n := len(p.free); n > 0 {
		parser := p.free[n-1]
		p.free = p.free[:n-1]
		return parser
	}
	return sitter.NewParser()
}

// Put returns a parser to the pool.
func (p *ParserPool) Put(parser *sitter.Parser) {
	p.free = append(p.free, parser)
}

// Close releases every pooled parser's native resources.
func (p *ParserPool) Close() {
	for _, parser := range p.free {
		parser.Close()
	}
	p.free = nil
}
