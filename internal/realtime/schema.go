package realtime

import "strconv"

type fieldList []Field

func (l fieldList) add(t Transform, names ...string) fieldList {
	for _, n := range names {
		l = append(l, Field{Name: n, Transform: t})
	}
	return l
}

func numbered(prefix string, n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = prefix + strconv.Itoa(i+1)
	}
	return names
}

// DefaultRegistry returns a registry with the price, orderbook and execution
// TRs this package knows how to decode.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(stockPriceSchema(), TRStockPrice)
	r.Register(stockOrderbookSchema(), TRStockOrderbook)
	r.Register(overseasPriceSchema(), TROverseasPrice)
	r.Register(overseasOrderbookSchema(), TROverseasOrderbook)
	r.Register(executionSchema(), TRExecution, TRExecutionVirtual)
	r.Register(overseasExecutionSchema(), TROverseasExecution, TROverseasExecutionV)
	return r
}

// H0STCNT0 국내주식 실시간체결가
func stockPriceSchema() Schema {
	fields := fieldList{}.
		add(Text, "MKSC_SHRN_ISCD").
		add(Clock, "STCK_CNTG_HOUR").
		add(Decimal, "STCK_PRPR").
		add(Text, "PRDY_VRSS_SIGN").
		add(Decimal, "PRDY_VRSS", "PRDY_CTRT", "WGHN_AVRG_STCK_PRC", "STCK_OPRC", "STCK_HGPR", "STCK_LWPR", "ASKP1", "BIDP1").
		add(Int, "CNTG_VOL", "ACML_VOL").
		add(Decimal, "ACML_TR_PBMN").
		add(Int, "SELN_CNTG_CSNU", "SHNU_CNTG_CSNU", "NTBY_CNTG_CSNU").
		add(Decimal, "CTTR").
		add(Int, "SELN_CNTG_SMTN", "SHNU_CNTG_SMTN").
		add(Text, "CCLD_DVSN").
		add(Decimal, "SHNU_RATE", "PRDY_VOL_VRSS_ACML_VOL_RATE").
		add(Clock, "OPRC_HOUR").
		add(Text, "OPRC_VRSS_PRPR_SIGN").
		add(Decimal, "OPRC_VRSS_PRPR").
		add(Clock, "HGPR_HOUR").
		add(Text, "HGPR_VRSS_PRPR_SIGN").
		add(Decimal, "HGPR_VRSS_PRPR").
		add(Clock, "LWPR_HOUR").
		add(Text, "LWPR_VRSS_PRPR_SIGN").
		add(Decimal, "LWPR_VRSS_PRPR").
		add(Text, "BSOP_DATE", "NEW_MKOP_CLS_CODE").
		add(Flag, "TRHT_YN").
		add(Int, "ASKP_RSQN1", "BIDP_RSQN1", "TOTAL_ASKP_RSQN", "TOTAL_BIDP_RSQN").
		add(Decimal, "VOL_TNRT").
		add(Int, "PRDY_SMNS_HOUR_ACML_VOL").
		add(Decimal, "PRDY_SMNS_HOUR_ACML_VOL_RATE").
		add(Text, "HOUR_CLS_CODE", "MRKT_TRTM_CLS_CODE").
		add(Decimal, "VI_STND_PRC")

	return Schema{
		Fields:   fields,
		KeyField: "MKSC_SHRN_ISCD",
		Build: func(r Record) Response {
			return &StockPrice{
				Instrument:        Instrument{Code: r.String("MKSC_SHRN_ISCD"), Exchange: MarketKRX},
				Time:              r.Clock("STCK_CNTG_HOUR"),
				Price:             r.Decimal("STCK_PRPR"),
				Sign:              r.String("PRDY_VRSS_SIGN"),
				Change:            r.Decimal("PRDY_VRSS"),
				ChangeRate:        r.Decimal("PRDY_CTRT"),
				Open:              r.Decimal("STCK_OPRC"),
				High:              r.Decimal("STCK_HGPR"),
				Low:               r.Decimal("STCK_LWPR"),
				Ask:               r.Decimal("ASKP1"),
				Bid:               r.Decimal("BIDP1"),
				Volume:            r.Int("CNTG_VOL"),
				AccumulatedVolume: r.Int("ACML_VOL"),
				AccumulatedAmount: r.Decimal("ACML_TR_PBMN"),
				Strength:          r.Decimal("CTTR"),
				Halted:            r.Bool("TRHT_YN"),
			}
		},
	}
}

// H0STASP0 국내주식 실시간호가
func stockOrderbookSchema() Schema {
	fields := fieldList{}.
		add(Text, "MKSC_SHRN_ISCD").
		add(Clock, "BSOP_HOUR").
		add(Text, "HOUR_CLS_CODE").
		add(Decimal, numbered("ASKP", 10)...).
		add(Decimal, numbered("BIDP", 10)...).
		add(Int, numbered("ASKP_RSQN", 10)...).
		add(Int, numbered("BIDP_RSQN", 10)...).
		add(Int, "TOTAL_ASKP_RSQN", "TOTAL_BIDP_RSQN", "OVTM_TOTAL_ASKP_RSQN", "OVTM_TOTAL_BIDP_RSQN").
		add(Decimal, "ANTC_CNPR").
		add(Int, "ANTC_CNQN", "ANTC_VOL").
		add(Decimal, "ANTC_CNTG_VRSS").
		add(Text, "ANTC_CNTG_VRSS_SIGN").
		add(Decimal, "ANTC_CNTG_PRDY_CTRT").
		add(Int, "ACML_VOL", "TOTAL_ASKP_RSQN_ICDC", "TOTAL_BIDP_RSQN_ICDC", "OVTM_TOTAL_ASKP_ICDC", "OVTM_TOTAL_BIDP_ICDC").
		add(Text, "STCK_DEAL_CLS_CODE")

	return Schema{
		Fields:   fields,
		KeyField: "MKSC_SHRN_ISCD",
		Build: func(r Record) Response {
			book := &StockOrderbook{
				Instrument:        Instrument{Code: r.String("MKSC_SHRN_ISCD"), Exchange: MarketKRX},
				Time:              r.Clock("BSOP_HOUR"),
				Asks:              make([]Level, 10),
				Bids:              make([]Level, 10),
				TotalAskQuantity:  r.Int("TOTAL_ASKP_RSQN"),
				TotalBidQuantity:  r.Int("TOTAL_BIDP_RSQN"),
				ExpectedPrice:     r.Decimal("ANTC_CNPR"),
				ExpectedQuantity:  r.Int("ANTC_CNQN"),
				AccumulatedVolume: r.Int("ACML_VOL"),
			}
			for i := range 10 {
				n := strconv.Itoa(i + 1)
				book.Asks[i] = Level{Price: r.Decimal("ASKP" + n), Quantity: r.Int("ASKP_RSQN" + n)}
				book.Bids[i] = Level{Price: r.Decimal("BIDP" + n), Quantity: r.Int("BIDP_RSQN" + n)}
			}
			return book
		},
	}
}

func overseasInstrument(r Record) Instrument {
	market, _, _ := ParseOverseasKey(r.String("RSYM"))
	return Instrument{Code: r.String("SYMB"), Exchange: market}
}

// HDFSCNT0 해외주식 실시간지연체결가
func overseasPriceSchema() Schema {
	fields := fieldList{}.
		add(Text, "RSYM", "SYMB", "ZDIV", "TYMD", "XYMD").
		add(Clock, "XHMS").
		add(Text, "KYMD").
		add(Clock, "KHMS").
		add(Decimal, "OPEN", "HIGH", "LOW", "LAST").
		add(Text, "SIGN").
		add(Decimal, "DIFF", "RATE", "PBID", "PASK").
		add(Int, "VBID", "VASK", "EVOL", "TVOL").
		add(Decimal, "TAMT").
		add(Int, "BIVL", "ASVL").
		add(Decimal, "STRN").
		add(Text, "MTYP")

	return Schema{
		Fields:   fields,
		KeyField: "RSYM",
		Build: func(r Record) Response {
			return &StockPrice{
				Instrument:        overseasInstrument(r),
				Time:              r.Clock("XHMS"),
				Price:             r.Decimal("LAST"),
				Sign:              r.String("SIGN"),
				Change:            r.Decimal("DIFF"),
				ChangeRate:        r.Decimal("RATE"),
				Open:              r.Decimal("OPEN"),
				High:              r.Decimal("HIGH"),
				Low:               r.Decimal("LOW"),
				Ask:               r.Decimal("PASK"),
				Bid:               r.Decimal("PBID"),
				Volume:            r.Int("EVOL"),
				AccumulatedVolume: r.Int("TVOL"),
				AccumulatedAmount: r.Decimal("TAMT"),
				Strength:          r.Decimal("STRN"),
			}
		},
	}
}

// HDFSASP0 해외주식 실시간호가 (1호가)
func overseasOrderbookSchema() Schema {
	fields := fieldList{}.
		add(Text, "RSYM", "SYMB", "ZDIV", "XYMD").
		add(Clock, "XHMS").
		add(Text, "KYMD").
		add(Clock, "KHMS").
		add(Int, "BVOL", "AVOL", "BDVL", "ADVL").
		add(Decimal, "PBID1", "PASK1").
		add(Int, "VBID1", "VASK1", "DBID1", "DASK1")

	return Schema{
		Fields:   fields,
		KeyField: "RSYM",
		Build: func(r Record) Response {
			return &StockOrderbook{
				Instrument:       overseasInstrument(r),
				Time:             r.Clock("XHMS"),
				Asks:             []Level{{Price: r.Decimal("PASK1"), Quantity: r.Int("VASK1")}},
				Bids:             []Level{{Price: r.Decimal("PBID1"), Quantity: r.Int("VBID1")}},
				TotalAskQuantity: r.Int("AVOL"),
				TotalBidQuantity: r.Int("BVOL"),
			}
		},
	}
}

// H0STCNI0/H0STCNI9 국내주식 실시간체결통보
func executionSchema() Schema {
	fields := fieldList{}.
		add(Text, "CUST_ID", "ACNT_NO", "ODER_NO", "OODER_NO", "SELN_BYOV_CLS", "RCTF_CLS", "ODER_KIND", "ODER_COND", "STCK_SHRN_ISCD").
		add(Int, "CNTG_QTY").
		add(Decimal, "CNTG_UNPR").
		add(Clock, "STCK_CNTG_HOUR").
		add(Flag, "RFUS_YN").
		add(Text, "CNTG_YN", "ACPT_YN", "BRNC_NO").
		add(Int, "ODER_QTY").
		add(Text, "ACNT_NAME", "CNTG_ISNM", "CRDT_CLS", "CRDT_LOAN_DATE", "CNTG_ISNM40").
		add(Decimal, "ODER_PRC")

	return Schema{
		Fields:   fields,
		KeyField: "CUST_ID",
		Build: func(r Record) Response {
			return &ExecutionNotice{
				Instrument:      Instrument{Code: r.String("STCK_SHRN_ISCD"), Exchange: MarketKRX},
				CustomerID:      r.String("CUST_ID"),
				Account:         r.String("ACNT_NO"),
				OrderNo:         r.String("ODER_NO"),
				OriginalOrderNo: r.String("OODER_NO"),
				Side:            r.String("SELN_BYOV_CLS"),
				Correction:      r.String("RCTF_CLS"),
				OrderKind:       r.String("ODER_KIND"),
				Name:            r.String("CNTG_ISNM"),
				Quantity:        r.Int("CNTG_QTY"),
				Price:           r.Decimal("CNTG_UNPR"),
				Time:            r.Clock("STCK_CNTG_HOUR"),
				Rejected:        r.Bool("RFUS_YN"),
				Filled:          r.String("CNTG_YN") == "2",
				Acceptance:      r.String("ACPT_YN"),
				Branch:          r.String("BRNC_NO"),
				OrderQuantity:   r.Int("ODER_QTY"),
				OrderPrice:      r.Decimal("ODER_PRC"),
				AccountName:     r.String("ACNT_NAME"),
			}
		},
	}
}

// H0GSCNI0/H0GSCNI9 해외주식 실시간체결통보
func overseasExecutionSchema() Schema {
	fields := fieldList{}.
		add(Text, "CUST_ID", "ACNT_NO", "ODER_NO", "OODER_NO", "SELN_BYOV_CLS", "RCTF_CLS", "ODER_KIND2", "STCK_SHRN_ISCD").
		add(Int, "CNTG_QTY").
		add(Decimal, "CNTG_UNPR").
		add(Clock, "STCK_CNTG_HOUR").
		add(Flag, "RFUS_YN").
		add(Text, "CNTG_YN", "ACPT_YN", "BRNC_NO").
		add(Int, "ODER_QTY").
		add(Text, "ACNT_NAME", "CNTG_ISNM", "ODER_COND", "DEBT_GB", "DEBT_DATE").
		add(Clock, "START_TM", "END_TM").
		add(Text, "TM_DIV_TP").
		add(Decimal, "CNTG_UNPR12")

	return Schema{
		Fields:   fields,
		KeyField: "CUST_ID",
		Build: func(r Record) Response {
			return &ExecutionNotice{
				Instrument:      Instrument{Code: r.String("STCK_SHRN_ISCD")},
				CustomerID:      r.String("CUST_ID"),
				Account:         r.String("ACNT_NO"),
				OrderNo:         r.String("ODER_NO"),
				OriginalOrderNo: r.String("OODER_NO"),
				Side:            r.String("SELN_BYOV_CLS"),
				Correction:      r.String("RCTF_CLS"),
				OrderKind:       r.String("ODER_KIND2"),
				Name:            r.String("CNTG_ISNM"),
				Quantity:        r.Int("CNTG_QTY"),
				Price:           r.Decimal("CNTG_UNPR"),
				Time:            r.Clock("STCK_CNTG_HOUR"),
				Rejected:        r.Bool("RFUS_YN"),
				Filled:          r.String("CNTG_YN") == "2",
				Acceptance:      r.String("ACPT_YN"),
				Branch:          r.String("BRNC_NO"),
				OrderQuantity:   r.Int("ODER_QTY"),
				AccountName:     r.String("ACNT_NAME"),
				Foreign:         true,
			}
		},
	}
}
