// Command msgctl sends create-message requests to Anthropic, Vertex AI or
// Bedrock from the command line.
//
//	msgctl send "Why is the sky blue?"
//	msgctl send --backend bedrock --model anthropic.claude-3-haiku-20240307-v1:0 --stream "Hello"
//	msgctl version -o json
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
