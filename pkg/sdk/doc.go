// Package ragstream provides a Go client for the ragstream question
// answering service.
//
// Answers arrive as a stream of frames: plain answers as "data" frames,
// grounded answers as one batch of sources followed by "summaryDocs" frames.
//
//	client, _ := ragstream.New("http://localhost:8080", ragstream.WithAPIKey(key))
//	stream, _ := client.Chat(ctx, ragstream.ChatRequest{Question: "Minimum ceiling height?"})
//	defer stream.Close()
//	for stream.Next() {
//	    fmt.Print(stream.Frame().Text)
//	}
//	if err := stream.Err(); err != nil { ... }
//
// Collect reads a whole stream into an Answer.
package ragstream
