// Package embeddings turns text into fixed-dimension vectors.
//
// Two providers implement Provider: FastEmbedProvider runs a local ONNX
// model (requires CGO) and Service calls a Text Embeddings Inference (TEI)
// server over HTTP. Both are deterministic for a given model, so the
// ingestion and query paths share one instance built at startup.
package embeddings
