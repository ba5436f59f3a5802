// Package domain models the ICRA (Índice Composto de Risco de Alagamento)
// flood-risk assessment of monitored urban points.
//
// # Data Source
//
// Daily climate observations come from the Open-Meteo API. Past dates are read
// from the archive endpoint and today or later from the forecast endpoint. Each
// request asks for a single day (start_date = end_date) in UTC and returns three
// parallel "daily" arrays:
//
//	precipitation_sum          →  PrecipitationMM (mm/day)
//	temperature_2m_mean        →  TempMeanC (°C)
//	apparent_temperature_mean  →  ApparentTempMeanC (°C)
//
// Only index 0 of each array is used. A null entry is read as 0.0.
//
// # Monitored Points
//
// Points are loaded once from a CSV with columns local, latitude, longitude.
// IDs are assigned by row order: the first data row is "p1", the second "p2",
// and so on. Every point is active and carries a 300 m influence radius.
//
// # Feature Schema
//
// The model consumes a fixed, ordered set of 21 features. Order is part of the
// contract: vectors are serialized in schema order. See [DefaultFeatureSchema].
//
//	precipitation  total, rolling means 7/30/90d, anomalies 7/30d, hourly intensity
//	lags           precipitation 1/2/3/7/14/30d, temperature 1/7d
//	temperature    daily mean, apparent mean
//	seasonal       sin/cos of month (period 12), sin/cos of day of year (period 365)
//
// "Lag" features are windowed averages over the last N days of history, not
// point lookups N days back. Models in the bundle were fitted against that
// definition.
//
// # Risk Bands
//
// The ICRA score lies in [0, 1]. Bands use strict upper bounds from the
// thresholds document:
//
//	score < baixo_max     Baixo       verde
//	score < moderado_max  Moderado    amarelo
//	score < alto_max      Alto        vermelho
//	otherwise             Muito Alto  vermelho_escuro
//
// Confidence derives from the ensemble standard deviation: below 0.15 Alta,
// below 0.30 Média, otherwise Baixa. A missing deviation reads as Alta.
//
// A point that could not be assessed in batch mode is reported as degraded:
// score -1, level Indisponível, confidence Baixa, color cinza.
package domain
