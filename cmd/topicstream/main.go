// Command topicstream clusters a stream of short texts into events and
// scores the clustering against annotated labels.
//
// Usage:
//
//	topicstream run --dataset tweets.tsv --model tfidf_dataset --threshold 0.6 --threshold 0.7
//	topicstream runs --limit 20
//	topicstream events --tail 100 --kind cluster
//	topicstream version
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
