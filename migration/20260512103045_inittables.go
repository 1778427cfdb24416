package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upInitTables, downInitTables)
}

func upInitTables(ctx context.Context, tx *sql.Tx) error {
	// Create bookings table
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE bookings (
			id UUID PRIMARY KEY,
			client_id UUID NOT NULL,
			worker_id UUID NOT NULL,
			status VARCHAR(32) NOT NULL,
			payment_status VARCHAR(32) NOT NULL,
			scheduled_date TIMESTAMPTZ NOT NULL,
			price NUMERIC(10,2) NOT NULL,
			last_updated TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `CREATE INDEX idx_bookings_client_id ON bookings(client_id);`)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `CREATE INDEX idx_bookings_worker_id ON bookings(worker_id);`)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `CREATE INDEX idx_bookings_status ON bookings(status);`)
	if err != nil {
		return err
	}

	// Create visits table
	_, err = tx.ExecContext(ctx, `
		CREATE TABLE visits (
			id UUID PRIMARY KEY,
			booking_id UUID NOT NULL,
			worker_id UUID NOT NULL,
			client_id UUID NOT NULL,
			address VARCHAR(512) NOT NULL,
			status VARCHAR(32) NOT NULL,
			scheduled_start TIMESTAMPTZ NOT NULL,
			scheduled_end TIMESTAMPTZ NOT NULL,
			actual_start TIMESTAMPTZ,
			actual_end TIMESTAMPTZ,
			total_distance DOUBLE PRECISION NOT NULL DEFAULT 0,
			auto_checked_in BOOLEAN NOT NULL DEFAULT FALSE,
			check_in_latitude DOUBLE PRECISION,
			check_in_longitude DOUBLE PRECISION,
			check_in_accuracy DOUBLE PRECISION,
			check_in_at TIMESTAMPTZ,
			check_in_distance DOUBLE PRECISION NOT NULL DEFAULT 0,
			geofence_inside BOOLEAN NOT NULL DEFAULT FALSE,
			geofence_entered_at TIMESTAMPTZ,
			geofence_exited_at TIMESTAMPTZ,
			eta_notified BOOLEAN NOT NULL DEFAULT FALSE,
			eta_distance DOUBLE PRECISION NOT NULL DEFAULT 0,
			eta_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT fk_visits_booking
				FOREIGN KEY(booking_id)
				REFERENCES bookings(id)
				ON UPDATE CASCADE
		);
	`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `CREATE INDEX idx_visits_booking_id ON visits(booking_id);`)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `CREATE INDEX idx_visits_worker_id ON visits(worker_id);`)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `CREATE INDEX idx_visits_status ON visits(status);`)
	if err != nil {
		return err
	}

	// Create route_points table
	_, err = tx.ExecContext(ctx, `
		CREATE TABLE route_points (
			id BIGSERIAL PRIMARY KEY,
			visit_id UUID NOT NULL,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			altitude DOUBLE PRECISION NOT NULL DEFAULT 0,
			horizontal_accuracy DOUBLE PRECISION NOT NULL DEFAULT 0,
			speed DOUBLE PRECISION NOT NULL DEFAULT 0,
			course DOUBLE PRECISION NOT NULL DEFAULT 0,
			recorded_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT fk_route_points_visit
				FOREIGN KEY(visit_id)
				REFERENCES visits(id)
				ON UPDATE CASCADE
				ON DELETE CASCADE
		);
	`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `CREATE INDEX idx_route_points_visit_id ON route_points(visit_id);`)
	if err != nil {
		return err
	}

	return nil
}

func downInitTables(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS route_points;`)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `DROP TABLE IF EXISTS visits;`)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `DROP TABLE IF EXISTS bookings;`)
	if err != nil {
		return err
	}
	return nil
}
