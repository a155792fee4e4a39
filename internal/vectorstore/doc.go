// Package vectorstore provides the similarity index over historical traces.
//
// Traces are embedded once through an Encoder and compared by Euclidean (L2)
// distance. Two backends implement Index:
//
//   - FlatIndex: exhaustive in-memory search, persisted as a pair of files
//     (<base>.index holding the vectors and <base>.meta.json holding the
//     parallel metadata). Loading either file alone fails with
//     ErrCorruptIndex.
//   - ChromemIndex: a chromem-go collection. Cosine similarity over
//     normalised vectors is converted to L2 distance so ordering matches
//     FlatIndex.
//
// Holder is the shared handle used by the request path. Searches take a read
// lock; Swap and Rebuild take the write lock so a rebuild never overlaps an
// in-flight search.
//
// # Usage
//
//	corpus, err := vectorstore.LoadCorpus("data/corpus.jsonl", logger)
//	if err != nil {
//	    return err
//	}
//	idx, err := vectorstore.Build(ctx, encoder, corpus, logger)
//	if err != nil {
//	    return err
//	}
//	if err := idx.Save("data/traces"); err != nil {
//	    return err
//	}
//
//	holder := vectorstore.NewHolder(idx, rebuild, logger)
//	hits, err := holder.Search(ctx, trace, 3)
package vectorstore
