package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/ports"
)

// CustomerRepository implements ports.CustomerRepository using pgx
type CustomerRepository struct {
	db ports.DBPort
}

// NewCustomerRepository creates a new customer repository
func NewCustomerRepository(db ports.DBPort) *CustomerRepository {
	return &CustomerRepository{db: db}
}

func (r *CustomerRepository) querier(db ports.DBTX) ports.DBTX {
	if db != nil {
		return db
	}
	return r.db.GetDB()
}

const customerColumns = `id, email, currency, gateway_customer_id, card_brand, card_last_four, trial_ends_at, created_at, updated_at`

// GetByID retrieves a customer by its id
func (r *CustomerRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*domain.Customer, error) {
	row := r.querier(db).QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	return r.scanCustomer(row)
}

// GetByGatewayID retrieves a customer by its gateway customer id
func (r *CustomerRepository) GetByGatewayID(ctx context.Context, db ports.DBTX, gatewayCustomerID string) (*domain.Customer, error) {
	row := r.querier(db).QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE gateway_customer_id = $1`, gatewayCustomerID)
	return r.scanCustomer(row)
}

// Create inserts a new customer record
func (r *CustomerRepository) Create(ctx context.Context, tx ports.DBTX, customer *domain.Customer) error {
	_, err := r.querier(tx).Exec(ctx,
		`INSERT INTO customers (id, email, currency, gateway_customer_id, card_brand, card_last_four, trial_ends_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		customer.ID,
		customer.Email,
		customer.Currency,
		nullTextPtr(customer.GatewayCustomerID),
		nullTextPtr(customer.CardBrand),
		nullTextPtr(customer.CardLastFour),
		nullTimestamptz(customer.TrialEndsAt),
		customer.CreatedAt,
		customer.UpdatedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "create customer", err)
	}
	return nil
}

// Update persists the customer's billing fields
func (r *CustomerRepository) Update(ctx context.Context, tx ports.DBTX, customer *domain.Customer) error {
	tag, err := r.querier(tx).Exec(ctx,
		`UPDATE customers
		 SET email = $2, currency = $3, gateway_customer_id = $4, card_brand = $5,
		     card_last_four = $6, trial_ends_at = $7, updated_at = $8
		 WHERE id = $1`,
		customer.ID,
		customer.Email,
		customer.Currency,
		nullTextPtr(customer.GatewayCustomerID),
		nullTextPtr(customer.CardBrand),
		nullTextPtr(customer.CardLastFour),
		nullTimestamptz(customer.TrialEndsAt),
		customer.UpdatedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "update customer", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCustomerNotFound.WithDetail("customer_id", customer.ID)
	}
	return nil
}

func (r *CustomerRepository) scanCustomer(row pgx.Row) (*domain.Customer, error) {
	var (
		c            domain.Customer
		gatewayID    pgtype.Text
		cardBrand    pgtype.Text
		cardLastFour pgtype.Text
		trialEndsAt  pgtype.Timestamptz
	)

	err := row.Scan(&c.ID, &c.Email, &c.Currency, &gatewayID, &cardBrand, &cardLastFour, &trialEndsAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCustomerNotFound
		}
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "scan customer", err)
	}

	c.GatewayCustomerID = textPtr(gatewayID)
	c.CardBrand = textPtr(cardBrand)
	c.CardLastFour = textPtr(cardLastFour)
	c.TrialEndsAt = timestamptzPtr(trialEndsAt)

	return &c, nil
}
