// Package docextract runs the document extraction pipeline in-process: a photographed receipt,
// invoice or statement goes in, the structured JSON document comes out.
//
// The client validates the image, loads the prompt templates, calls the model through an
// OpenAI-compatible endpoint (Gemini by default) with bounded retries and returns the parsed
// result with token usage.
//
//	client, err := docextract.New(ctx,
//	    docextract.WithAPIKey(os.Getenv("GEMINI_API_KEY")),
//	    docextract.WithModel("gemini-2.0-flash"),
//	)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	res, err := client.Extract(ctx, "receipt.jpg")
//	if err != nil {
//	    log.Printf("%s: %v", docextract.ErrorKind(err), err)
//	    return err
//	}
//	fmt.Println(string(res.JSON))
//
// # Optional components
//
// WithRedis enables the result cache and persists budget counters. WithTokenBudget enforces
// daily and monthly token limits. WithPrometheus exports SDK operation metrics.
package docextract
