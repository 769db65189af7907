package config

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/chrissnell/radiativepower/pkg/migrate"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

const defaultConfigName = "default"

// SQLiteProvider implements ConfigProvider for SQLite database configuration
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider opens (creating if needed) a SQLite configuration
// database and brings its schema up to date
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// SQLite serialises writers; one connection also keeps :memory: databases intact
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	migrator := migrate.NewMigrator(db, migrations, "migrations")
	if err := migrator.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate configuration schema: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// LoadConfig loads the complete configuration from SQLite database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	config := &ConfigData{}

	model, err := s.GetModelConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load model config: %w", err)
	}
	config.Model = *model

	if err := s.loadClimate(&config.Climate); err != nil {
		return nil, fmt.Errorf("failed to load climate config: %w", err)
	}

	if err := s.loadAssessment(&config.Assessment); err != nil {
		return nil, fmt.Errorf("failed to load assessment config: %w", err)
	}
	coords, err := s.GetCoordinates()
	if err != nil {
		return nil, fmt.Errorf("failed to load coordinates: %w", err)
	}
	config.Assessment.Coordinates = coords

	storage, err := s.GetStorageConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}
	config.Storage = *storage

	rest, err := s.loadREST()
	if err != nil {
		return nil, fmt.Errorf("failed to load rest config: %w", err)
	}
	config.REST = rest

	return config, nil
}

const configIDQuery = `(SELECT id FROM configs WHERE name = 'default')`

// GetModelConfig returns model configuration from the database
func (s *SQLiteProvider) GetModelConfig() (*ModelData, error) {
	query := `
		SELECT bandgap, strategy, min_voltage, max_voltage, voltage_tolerance,
		       max_evaluations, grid_step, grid_decimals, temperature_decimals,
		       bandgap_decimals, cache_capacity, cache_snapshot, sky_formula,
		       mb_c0, mb_c1, mb_c2, mb_diurnal, mb_elevation,
		       mb_reference_pressure, mb_cloud_scale_height
		FROM model_configs
		WHERE config_id = ` + configIDQuery

	var (
		bandgap, minV, maxV, tol, gridStep            sql.NullFloat64
		strategy, snapshot, formula                   sql.NullString
		maxEvals, gridDec, tempDec, bgDec, cacheCap   sql.NullInt64
		c0, c1, c2, diurnal, elevation, refP, cloudSH sql.NullFloat64
	)

	model := &ModelData{}
	err := s.db.QueryRow(query).Scan(
		&bandgap, &strategy, &minV, &maxV, &tol,
		&maxEvals, &gridStep, &gridDec, &tempDec,
		&bgDec, &cacheCap, &snapshot, &formula,
		&c0, &c1, &c2, &diurnal, &elevation, &refP, &cloudSH,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query model config: %w", err)
	}

	model.Bandgap = bandgap.Float64
	model.Strategy = strategy.String
	model.MinVoltage = minV.Float64
	model.MaxVoltage = maxV.Float64
	model.VoltageTolerance = tol.Float64
	model.MaxEvaluations = int(maxEvals.Int64)
	model.GridStep = gridStep.Float64
	model.GridDecimals = int32(gridDec.Int64)
	model.TemperatureDecimals = int32(tempDec.Int64)
	model.BandgapDecimals = int32(bgDec.Int64)
	model.CacheCapacity = int(cacheCap.Int64)
	model.CacheSnapshot = snapshot.String
	model.SkyFormula = formula.String

	// Coefficients are only overridden as a complete set
	if c0.Valid && c1.Valid && c2.Valid && diurnal.Valid && elevation.Valid && refP.Valid && cloudSH.Valid {
		model.MartinBerdahl = &MartinBerdahlData{
			C0:                c0.Float64,
			C1:                c1.Float64,
			C2:                c2.Float64,
			Diurnal:           diurnal.Float64,
			Elevation:         elevation.Float64,
			ReferencePressure: refP.Float64,
			CloudScaleHeight:  cloudSH.Float64,
		}
	}

	return model, nil
}

func (s *SQLiteProvider) loadClimate(climate *ClimateData) error {
	query := `SELECT type, path, max_distance FROM climate_configs WHERE config_id = ` + configIDQuery

	var typ, path sql.NullString
	var maxDistance sql.NullFloat64
	err := s.db.QueryRow(query).Scan(&typ, &path, &maxDistance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	climate.Type = typ.String
	climate.Path = path.String
	climate.MaxDistance = maxDistance.Float64
	return nil
}

func (s *SQLiteProvider) loadAssessment(a *AssessmentData) error {
	query := `
		SELECT name, start_date, end_date,
		       grid_lat_min, grid_lat_max, grid_lon_min, grid_lon_max, grid_step,
		       batch_start, batch_quantity, workers, night_only
		FROM assessment_configs
		WHERE config_id = ` + configIDQuery

	var name, start, end sql.NullString
	var latMin, latMax, lonMin, lonMax, step sql.NullFloat64
	var batchStart, batchQuantity, workers sql.NullInt64
	var nightOnly sql.NullBool

	err := s.db.QueryRow(query).Scan(
		&name, &start, &end,
		&latMin, &latMax, &lonMin, &lonMax, &step,
		&batchStart, &batchQuantity, &workers, &nightOnly,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	a.Name = name.String
	a.StartDate = start.String
	a.EndDate = end.String
	a.BatchStart = int(batchStart.Int64)
	a.BatchQuantity = int(batchQuantity.Int64)
	a.Workers = int(workers.Int64)
	a.NightOnly = nightOnly.Bool

	if step.Valid {
		a.Grid = &GridData{
			LatMin: latMin.Float64,
			LatMax: latMax.Float64,
			LonMin: lonMin.Float64,
			LonMax: lonMax.Float64,
			Step:   step.Float64,
		}
	}
	return nil
}

// GetCoordinates returns the explicitly listed assessment coordinates in
// their configured order
func (s *SQLiteProvider) GetCoordinates() ([]PointData, error) {
	query := `
		SELECT latitude, longitude
		FROM coordinates
		WHERE config_id = ` + configIDQuery + `
		ORDER BY position`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query coordinates: %w", err)
	}
	defer rows.Close()

	var coords []PointData
	for rows.Next() {
		var p PointData
		if err := rows.Scan(&p.Lat, &p.Lon); err != nil {
			return nil, fmt.Errorf("failed to scan coordinate row: %w", err)
		}
		coords = append(coords, p)
	}
	return coords, rows.Err()
}

// GetStorageConfig returns storage configuration from the database
func (s *SQLiteProvider) GetStorageConfig() (*StorageData, error) {
	query := `
		SELECT backend_type, csv_directory, sqlite_path, timescale_connection_string
		FROM storage_configs
		WHERE config_id = ` + configIDQuery + ` AND enabled = 1`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query storage configs: %w", err)
	}
	defer rows.Close()

	storage := &StorageData{}
	for rows.Next() {
		var backendType string
		var csvDirectory, sqlitePath, timescaleConnectionString sql.NullString

		if err := rows.Scan(&backendType, &csvDirectory, &sqlitePath, &timescaleConnectionString); err != nil {
			return nil, fmt.Errorf("failed to scan storage config row: %w", err)
		}

		switch backendType {
		case "csv":
			if csvDirectory.Valid {
				storage.CSV = &CSVData{Directory: csvDirectory.String}
			}
		case "sqlite":
			if sqlitePath.Valid {
				storage.SQLite = &SQLiteData{Path: sqlitePath.String}
			}
		case "timescaledb":
			if timescaleConnectionString.Valid {
				storage.TimescaleDB = &TimescaleDBData{ConnectionString: timescaleConnectionString.String}
			}
		}
	}

	return storage, rows.Err()
}

func (s *SQLiteProvider) loadREST() (*RESTServerData, error) {
	query := `
		SELECT cert, key, port, listen_addr
		FROM rest_configs
		WHERE config_id = ` + configIDQuery + ` AND enabled = 1`

	var cert, key, listenAddr sql.NullString
	var port sql.NullInt64
	err := s.db.QueryRow(query).Scan(&cert, &key, &port, &listenAddr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &RESTServerData{
		Cert:       cert.String,
		Key:        key.String,
		Port:       int(port.Int64),
		ListenAddr: listenAddr.String,
	}, nil
}

// IsReadOnly returns false since the database can be written with SaveConfig
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveConfig replaces the stored configuration with configData
func (s *SQLiteProvider) SaveConfig(configData *ConfigData) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	configID, err := s.getOrCreateConfigID(tx)
	if err != nil {
		return fmt.Errorf("failed to insert config: %w", err)
	}

	if err := s.clearExistingConfig(tx, configID); err != nil {
		return fmt.Errorf("failed to clear existing config: %w", err)
	}

	if err := s.insertModel(tx, configID, &configData.Model); err != nil {
		return fmt.Errorf("failed to insert model config: %w", err)
	}

	c := configData.Climate
	if _, err := tx.Exec(`INSERT INTO climate_configs (config_id, type, path, max_distance) VALUES (?, ?, ?, ?)`,
		configID, c.Type, c.Path, c.MaxDistance); err != nil {
		return fmt.Errorf("failed to insert climate config: %w", err)
	}

	if err := s.insertAssessment(tx, configID, &configData.Assessment); err != nil {
		return fmt.Errorf("failed to insert assessment config: %w", err)
	}

	if err := s.insertStorageConfigs(tx, configID, &configData.Storage); err != nil {
		return fmt.Errorf("failed to insert storage configs: %w", err)
	}

	if r := configData.REST; r != nil {
		if _, err := tx.Exec(`INSERT INTO rest_configs (config_id, enabled, cert, key, port, listen_addr) VALUES (?, 1, ?, ?, ?, ?)`,
			configID, r.Cert, r.Key, r.Port, r.ListenAddr); err != nil {
			return fmt.Errorf("failed to insert rest config: %w", err)
		}
	}

	if _, err := tx.Exec(`UPDATE configs SET updated_at = datetime('now') WHERE id = ?`, configID); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteProvider) getOrCreateConfigID(tx *sql.Tx) (int64, error) {
	if _, err := tx.Exec(`INSERT OR IGNORE INTO configs (name) VALUES (?)`, defaultConfigName); err != nil {
		return 0, err
	}
	var id int64
	err := tx.QueryRow(`SELECT id FROM configs WHERE name = ?`, defaultConfigName).Scan(&id)
	return id, err
}

func (s *SQLiteProvider) clearExistingConfig(tx *sql.Tx, configID int64) error {
	tables := []string{"model_configs", "climate_configs", "assessment_configs", "coordinates", "storage_configs", "rest_configs"}
	for _, table := range tables {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE config_id = ?", configID); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteProvider) insertModel(tx *sql.Tx, configID int64, m *ModelData) error {
	var c0, c1, c2, diurnal, elevation, refP, cloudSH sql.NullFloat64
	if mb := m.MartinBerdahl; mb != nil {
		c0 = sql.NullFloat64{Float64: mb.C0, Valid: true}
		c1 = sql.NullFloat64{Float64: mb.C1, Valid: true}
		c2 = sql.NullFloat64{Float64: mb.C2, Valid: true}
		diurnal = sql.NullFloat64{Float64: mb.Diurnal, Valid: true}
		elevation = sql.NullFloat64{Float64: mb.Elevation, Valid: true}
		refP = sql.NullFloat64{Float64: mb.ReferencePressure, Valid: true}
		cloudSH = sql.NullFloat64{Float64: mb.CloudScaleHeight, Valid: true}
	}

	query := `
		INSERT INTO model_configs (
			config_id, bandgap, strategy, min_voltage, max_voltage, voltage_tolerance,
			max_evaluations, grid_step, grid_decimals, temperature_decimals,
			bandgap_decimals, cache_capacity, cache_snapshot, sky_formula,
			mb_c0, mb_c1, mb_c2, mb_diurnal, mb_elevation,
			mb_reference_pressure, mb_cloud_scale_height
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := tx.Exec(query,
		configID, m.Bandgap, m.Strategy, m.MinVoltage, m.MaxVoltage, m.VoltageTolerance,
		m.MaxEvaluations, m.GridStep, m.GridDecimals, m.TemperatureDecimals,
		m.BandgapDecimals, m.CacheCapacity, m.CacheSnapshot, m.SkyFormula,
		c0, c1, c2, diurnal, elevation, refP, cloudSH,
	)
	return err
}

func (s *SQLiteProvider) insertAssessment(tx *sql.Tx, configID int64, a *AssessmentData) error {
	var latMin, latMax, lonMin, lonMax, step sql.NullFloat64
	if g := a.Grid; g != nil {
		latMin = sql.NullFloat64{Float64: g.LatMin, Valid: true}
		latMax = sql.NullFloat64{Float64: g.LatMax, Valid: true}
		lonMin = sql.NullFloat64{Float64: g.LonMin, Valid: true}
		lonMax = sql.NullFloat64{Float64: g.LonMax, Valid: true}
		step = sql.NullFloat64{Float64: g.Step, Valid: true}
	}

	query := `
		INSERT INTO assessment_configs (
			config_id, name, start_date, end_date,
			grid_lat_min, grid_lat_max, grid_lon_min, grid_lon_max, grid_step,
			batch_start, batch_quantity, workers, night_only
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := tx.Exec(query,
		configID, a.Name, a.StartDate, a.EndDate,
		latMin, latMax, lonMin, lonMax, step,
		a.BatchStart, a.BatchQuantity, a.Workers, a.NightOnly,
	); err != nil {
		return err
	}

	for i, p := range a.Coordinates {
		if _, err := tx.Exec(`INSERT INTO coordinates (config_id, position, latitude, longitude) VALUES (?, ?, ?, ?)`,
			configID, i, p.Lat, p.Lon); err != nil {
			return fmt.Errorf("coordinate %d: %w", i, err)
		}
	}
	return nil
}

func (s *SQLiteProvider) insertStorageConfigs(tx *sql.Tx, configID int64, storage *StorageData) error {
	insert := `
		INSERT INTO storage_configs (config_id, backend_type, enabled, csv_directory, sqlite_path, timescale_connection_string)
		VALUES (?, ?, 1, ?, ?, ?)`

	if storage.CSV != nil {
		if _, err := tx.Exec(insert, configID, "csv", storage.CSV.Directory, nil, nil); err != nil {
			return err
		}
	}
	if storage.SQLite != nil {
		if _, err := tx.Exec(insert, configID, "sqlite", nil, storage.SQLite.Path, nil); err != nil {
			return err
		}
	}
	if storage.TimescaleDB != nil {
		if _, err := tx.Exec(insert, configID, "timescaledb", nil, nil, storage.TimescaleDB.ConnectionString); err != nil {
			return err
		}
	}
	return nil
}
