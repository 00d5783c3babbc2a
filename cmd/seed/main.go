package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"crmdispatch/internal/config"
)

// ANSI color codes for terminal output
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

// Seeded phones share this prefix so -clear can find them
const phonePrefix = "+5511900010"

// Command-line flags
var (
	contactsCount = flag.Int("contacts", 12, "Number of contacts to create")
	clearData     = flag.Bool("clear", false, "Clear existing seed data before inserting")
	showHelp      = flag.Bool("help", false, "Show usage information")
)

var (
	names     = []string{"Ana Souza", "Bruno Lima", "Carla Mendes", "Diego Alves", "Elisa Rocha", "Fábio Nunes", "Gabriela Dias", "Heitor Costa", "Isabela Martins", "João Pereira", "Larissa Gomes", "Mateus Ribeiro"}
	statuses  = []string{"ativo", "ativo", "pausado", "aluno novo", "ativo", "reembolsado"}
	saleState = []string{"ganho", "perdido", "novo lead", "ganho"}
)

var products = []struct {
	Name string
	Type string
}{
	{"Mentoria Elite", "Elite"},
	{"Programa Scale", "Scale"},
	{"Labs Intensivo", "Labs"},
	{"Curso Avulso", "Venda"},
}

var tags = []string{"Sem resposta 7 dias", "Sem resposta 14 dias", "Contato esgotado", "Aguardando retorno"}

func main() {
	flag.Parse()

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	// Load .env file (ignore error if not present)
	_ = godotenv.Load()

	printInfo("=== CRM Dispatch Database Seeder ===\n")

	cfg, err := config.Load()
	if err != nil {
		printError(fmt.Sprintf("Failed to load configuration: %v", err))
		os.Exit(1)
	}

	printInfo("Connecting to database...")
	db, err := sql.Open("postgres", cfg.GetDatabaseDSN())
	if err != nil {
		printError(fmt.Sprintf("Failed to open database connection: %v", err))
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		printError(fmt.Sprintf("Failed to ping database: %v", err))
		os.Exit(1)
	}
	printSuccess("✓ Connected to database\n")

	if *clearData {
		if err := clearSeedData(ctx, db); err != nil {
			printError(fmt.Sprintf("Failed to clear seed data: %v", err))
			os.Exit(1)
		}
	}

	productIDs, err := seedCatalog(ctx, db)
	if err != nil {
		printError(fmt.Sprintf("Failed to seed products and tags: %v", err))
		os.Exit(1)
	}

	created, err := seedContacts(ctx, db, *contactsCount, productIDs, time.Now())
	if err != nil {
		printError(fmt.Sprintf("Failed to seed contacts: %v", err))
		os.Exit(1)
	}

	printInfo("\n=== Seeding Summary ===")
	printSuccess(fmt.Sprintf("✓ Products available: %d", len(productIDs)))
	printSuccess(fmt.Sprintf("✓ Contacts created: %d", created))
	printInfo("\nRun POST /conversations/priority/recalculate to score the new conversations.")
	printInfo("Seeding completed successfully!")
}

// clearSeedData removes contacts with the seeded phone prefix. Conversations,
// sales and product links go with them through ON DELETE CASCADE.
func clearSeedData(ctx context.Context, db *sql.DB) error {
	printWarning("Clearing existing seed data...")

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE phone LIKE $1", phonePrefix+"%"); err != nil {
		return fmt.Errorf("failed to delete conversations: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM contacts WHERE phone LIKE $1", phonePrefix+"%"); err != nil {
		return fmt.Errorf("failed to delete contacts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	printSuccess("✓ Seed data cleared\n")
	return nil
}

// seedCatalog upserts products and tags and returns product ids in catalog order
func seedCatalog(ctx context.Context, db *sql.DB) ([]string, error) {
	printInfo("Seeding products and tags...")

	ids := make([]string, 0, len(products))
	for _, p := range products {
		var id string
		err := db.QueryRowContext(ctx, `
			INSERT INTO products (name, product_type) VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET product_type = EXCLUDED.product_type
			RETURNING id
		`, p.Name, p.Type).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert product %s: %w", p.Name, err)
		}
		ids = append(ids, id)
	}

	for _, name := range tags {
		if _, err := db.ExecContext(ctx, `INSERT INTO tags (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name); err != nil {
			return nil, fmt.Errorf("failed to insert tag %s: %w", name, err)
		}
	}

	return ids, nil
}

// seedContacts creates contacts with a conversation each. Data varies by index
// so the scorer spreads them across every bucket.
func seedContacts(ctx context.Context, db *sql.DB, count int, productIDs []string, now time.Time) (int, error) {
	printInfo(fmt.Sprintf("Seeding %d contacts...", count))

	created := 0
	for i := 1; i <= count; i++ {
		ok, err := seedContact(ctx, db, i, productIDs, now)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}

	if created < count {
		printWarning(fmt.Sprintf("  %d contact(s) already existed", count-created))
	}
	return created, nil
}

func seedContact(ctx context.Context, db *sql.DB, i int, productIDs []string, now time.Time) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	phone := fmt.Sprintf("%s%03d", phonePrefix, i)
	product := products[i%len(products)]
	status := statuses[i%len(statuses)]

	var contactID string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO contacts (phone, name, product, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (phone) DO NOTHING
		RETURNING id
	`, phone, names[i%len(names)], product.Type, status).Scan(&contactID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert contact %s: %w", phone, err)
	}

	// Every third contact has no product link
	if i%3 != 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO contact_products (contact_id, product_id, status) VALUES ($1, $2, $3)
		`, contactID, productIDs[i%len(productIDs)], status); err != nil {
			return false, fmt.Errorf("failed to link product: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sales (contact_id, status) VALUES ($1, $2)
	`, contactID, saleState[i%len(saleState)]); err != nil {
		return false, fmt.Errorf("failed to insert sale: %w", err)
	}

	lastInteraction := now.Add(-time.Duration(i) * 24 * time.Hour)
	var conversationID string
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO conversations (phone, contact_id, last_interaction_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`, phone, contactID, lastInteraction).Scan(&conversationID); err != nil {
		return false, fmt.Errorf("failed to insert conversation: %w", err)
	}

	if tag := tags[i%len(tags)]; i%2 == 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_tags (conversation_id, tag_id, active)
			SELECT $1, id, TRUE FROM tags WHERE name = $2
		`, conversationID, tag); err != nil {
			return false, fmt.Errorf("failed to tag conversation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

func printSuccess(msg string) {
	fmt.Printf("%s%s%s\n", colorGreen, msg, colorReset)
}

func printError(msg string) {
	fmt.Fprintf(os.Stderr, "%s%s%s\n", colorRed, msg, colorReset)
}

func printInfo(msg string) {
	fmt.Printf("%s%s%s\n", colorCyan, msg, colorReset)
}

func printWarning(msg string) {
	fmt.Printf("%s%s%s\n", colorYellow, msg, colorReset)
}

func printUsage() {
	printInfo("=== CRM Dispatch Database Seeder ===\n")
	fmt.Println("Usage: go run ./cmd/seed [flags]")
	fmt.Println("\nFlags:")
	fmt.Println("  -contacts int   Number of contacts to create (default 12)")
	fmt.Println("  -clear          Clear existing seed data before inserting")
	fmt.Println("  -help           Show this help message")
	fmt.Println("\nNotes:")
	fmt.Println("  - Seeded contacts use phones starting with " + phonePrefix)
	fmt.Println("  - Re-running is safe: existing phones are skipped")
}
