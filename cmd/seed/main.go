// cmd/seed populates a running ledgerd with mock farm batches for
// development: records across every category, verifications by inspectors
// and retailers, and one dispute.
//
// Running twice is safe: a batch whose product name and harvest date are
// already on the ledger is skipped.
//
// Usage:
//
//	go run ./cmd/seed                                  # dev identity headers
//	LEDGER_URL=http://localhost:8080 ADMIN_TOKEN=... go run ./cmd/seed
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jmerrifield20/agriledger/pkg/client"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}

type batch struct {
	Farmer    string
	Input     client.RecordInput
	Verifiers []party
	Dispute   *dispute
}

type party struct {
	Subject string
	Role    string
}

type dispute struct {
	By     party
	Reason string
}

var (
	inspector = party{"inspector-ana-ruiz", "inspector"}
	retailer  = party{"retailer-greenmart", "retailer"}
	logistics = party{"logistics-coldchain", "logistics"}
)

var batches = []batch{
	{
		Farmer: "farmer-hillside-orchards",
		Input: client.RecordInput{
			ProductName: "Organic Apples", BatchSize: "500 kg", Category: "Fresh",
			Location: "Yakima Valley, WA", HarvestDate: "2024-09-14",
			Description:    "Honeycrisp, hand picked.",
			Certifications: []string{"Organic", "GAP"},
		},
		Verifiers: []party{inspector, retailer},
	},
	{
		Farmer: "farmer-uji-terraces",
		Input: client.RecordInput{
			ProductName: "Matcha Powder", BatchSize: "25 kg", Category: "Powders",
			Location: "Uji, Kyoto", HarvestDate: "2024-05-02",
			Certifications: []string{"JAS Organic"},
		},
		Verifiers: []party{inspector},
	},
	{
		Farmer: "farmer-uji-terraces",
		Input: client.RecordInput{
			ProductName: "Sencha Leaf", BatchSize: "60 kg", Category: "Teas",
			Location: "Uji, Kyoto", HarvestDate: "2024-05-20",
			Certifications: []string{"JAS Organic", "Rainforest Alliance"},
		},
	},
	{
		Farmer: "farmer-prairie-hens",
		Input: client.RecordInput{
			ProductName: "Pasture Raised Chicken", BatchSize: "1200 birds", Category: "Poultry",
			Location: "Lancaster County, PA", HarvestDate: "2024-10-01",
			Certifications: []string{"Certified Humane"},
		},
		Verifiers: []party{inspector, retailer, inspector},
	},
	{
		Farmer: "farmer-highplains-ranch",
		Input: client.RecordInput{
			ProductName: "Grass Fed Beef", BatchSize: "40 head", Category: "Beef",
			Location: "Sheridan, WY", HarvestDate: "2024-08-18",
			Certifications: []string{"AGA Grassfed", "Non-GMO"},
		},
		Verifiers: []party{inspector},
		Dispute:   &dispute{By: logistics, Reason: "cold chain break logged at depot 4"},
	},
	{
		Farmer: "farmer-redriver-grain",
		Input: client.RecordInput{
			ProductName: "Hard Red Wheat", BatchSize: "30 t", Category: "Grains",
			Location: "Fargo, ND", HarvestDate: "2024-08-05",
			Certifications: []string{"Non-GMO"},
		},
		Verifiers: []party{retailer},
	},
	{
		Farmer: "farmer-valley-dairy",
		Input: client.RecordInput{
			ProductName: "Raw Milk Cheddar", BatchSize: "800 wheels", Category: "Dairy",
			Location: "Tillamook, OR", HarvestDate: "2024-03-11",
			Certifications: []string{"Organic", "Animal Welfare Approved"},
		},
	},
	{
		Farmer: "farmer-kerala-spice",
		Input: client.RecordInput{
			ProductName: "Black Pepper", BatchSize: "2 t", Category: "Spices",
			Location: "Wayanad, Kerala", HarvestDate: "2024-01-28",
			Certifications: []string{"Fair Trade", "Organic"},
		},
		Verifiers: []party{inspector, retailer},
	},
	{
		Farmer: "farmer-bristol-bay",
		Input: client.RecordInput{
			ProductName: "Sockeye Salmon", BatchSize: "9 t", Category: "Seafood",
			Location: "Bristol Bay, AK", HarvestDate: "2024-07-09",
			Certifications: []string{"MSC"},
		},
		Verifiers: []party{inspector},
	},
}

type connector func(p party) (*client.Client, error)

func run() error {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.SetDefault("ledger.url", "http://localhost:8080")
	viper.SetDefault("admin.token", "")

	base := viper.GetString("ledger.url")
	ctx := context.Background()

	connect, err := connectorFor(ctx, base, viper.GetString("admin.token"))
	if err != nil {
		return err
	}

	reader, err := connect(party{"seed", "viewer"})
	if err != nil {
		return err
	}
	existing, err := reader.ListRecords(ctx, "", "")
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}
	seen := make(map[string]bool, len(existing))
	for _, r := range existing {
		seen[r.ProductName+"|"+r.HarvestDate] = true
	}

	for _, b := range batches {
		if seen[b.Input.ProductName+"|"+b.Input.HarvestDate] {
			fmt.Printf("  skip  %s\n", b.Input.ProductName)
			continue
		}
		if err := seedBatch(ctx, connect, b); err != nil {
			return fmt.Errorf("seed %s: %w", b.Input.ProductName, err)
		}
	}

	m, err := reader.Summary(ctx)
	if err != nil {
		return fmt.Errorf("summary: %w", err)
	}
	fmt.Printf("\nseed complete: %d records, %d verifications, revenue %s\n",
		m.TotalRecords, m.TotalVerifications, m.EstimatedRevenue.StringFixed(2))
	return nil
}

func seedBatch(ctx context.Context, connect connector, b batch) error {
	farmer, err := connect(party{b.Farmer, "farmer"})
	if err != nil {
		return err
	}
	rec, err := farmer.CreateRecord(ctx, b.Input)
	if err != nil {
		return err
	}

	for _, v := range b.Verifiers {
		c, err := connect(v)
		if err != nil {
			return err
		}
		updated, err := c.VerifyRecord(ctx, rec.ID)
		if errors.Is(err, client.ErrTerminalState) {
			break
		}
		if err != nil {
			return fmt.Errorf("verify as %s: %w", v.Subject, err)
		}
		rec = updated
	}

	if b.Dispute != nil {
		c, err := connect(b.Dispute.By)
		if err != nil {
			return err
		}
		updated, err := c.DisputeRecord(ctx, rec.ID, b.Dispute.Reason)
		if err != nil && !errors.Is(err, client.ErrTerminalState) {
			return fmt.Errorf("dispute: %w", err)
		}
		if err == nil {
			rec = updated
		}
	}

	fmt.Printf("  %-24s %-8s %-10s verifications=%d fee=%s\n",
		rec.ProductName, rec.Category, rec.Status, rec.VerificationCount, rec.TransactionFee.StringFixed(2))
	return nil
}

// connectorFor returns a factory for per-party clients. With an admin token
// each party gets a freshly minted role token; without one the dev identity
// headers are used.
func connectorFor(ctx context.Context, base, adminToken string) (connector, error) {
	if adminToken == "" {
		return func(p party) (*client.Client, error) {
			return client.New(base, client.WithDevIdentity(p.Subject, p.Role))
		}, nil
	}

	admin, err := client.New(base, client.WithBearerToken(adminToken))
	if err != nil {
		return nil, err
	}
	cache := map[party]*client.Client{}
	return func(p party) (*client.Client, error) {
		if c, ok := cache[p]; ok {
			return c, nil
		}
		tok, err := admin.IssueToken(ctx, p.Subject, p.Role, time.Hour)
		if err != nil {
			return nil, fmt.Errorf("issue token for %s: %w", p.Subject, err)
		}
		c, err := client.New(base, client.WithBearerToken(tok))
		if err != nil {
			return nil, err
		}
		cache[p] = c
		return c, nil
	}, nil
}
