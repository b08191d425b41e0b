package rpc

// CompileRequest asks the server to lower source into bytecode and
// report back its shape, without executing it.
type CompileRequest struct {
	Path   string `json:"path"`
	Source string `json:"source"`
}

// CompileResponse summarizes a successful compile. Disassembly is the
// full human-readable instruction listing (bytecode.CompiledModule.Disassemble),
// the same text `bur compile --disasm` prints locally.
type CompileResponse struct {
	Path          string `json:"path"`
	FunctionCount int    `json:"function_count"`
	Disassembly   string `json:"disassembly"`
}

// ExecuteRequest asks the server to compile and run source against a
// fresh, single-use Runtime.
type ExecuteRequest struct {
	Path   string `json:"path"`
	Source string `json:"source"`
}

// ExecuteResponse carries the export value's Kind/TypeName/String
// representation — not a full object-graph serialization, since the
// export's Object may hold references this server's Runtime owns and
// a JSON-RPC caller is never meant to mutate.
type ExecuteResponse struct {
	Path   string `json:"path"`
	Kind   string `json:"kind"`
	Result string `json:"result"`
}

// ErrorResponse is returned (wrapped in a gRPC status) when a Compile
// or Execute request fails.
type ErrorResponse struct {
	Message string `json:"message"`
}
