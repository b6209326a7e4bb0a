// Package client is the agriledger Go SDK.
//
// # Connecting
//
// Production servers authenticate callers with role tokens minted by an
// admin through POST /api/v1/tokens:
//
//	c, err := client.New("https://ledger.example.com",
//	    client.WithBearerToken(os.Getenv("AGL_TOKEN")),
//	)
//
// Development servers started with dev headers enabled accept a plain
// subject and role instead:
//
//	c := client.MustNew("http://localhost:8080",
//	    client.WithDevIdentity("farmer-001", "farmer"),
//	)
//
// # Recording a harvest
//
//	rec, err := c.CreateRecord(ctx, client.RecordInput{
//	    ProductName:    "Organic Apples",
//	    BatchSize:      "500 kg",
//	    Category:       "Fresh",
//	    Location:       "Yakima Valley, WA",
//	    HarvestDate:    "2024-09-14",
//	    Certifications: []string{"Organic"},
//	})
//
// Downstream parties then call VerifyRecord, or DisputeRecord with a reason.
//
// # Errors
//
// Non-2xx responses are returned as *APIError. Match the kind with
// errors.Is:
//
//	if errors.Is(err, client.ErrTerminalState) {
//	    // the record is Delivered or Disputed
//	}
//
// Validation failures carry the rejected fields in APIError.Fields.
package client
