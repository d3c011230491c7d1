package summary

const summaryPrompt = `
You are a data analyst tasked with creating clear, insightful summaries for non-technical users.

**Data Analysis Context:**
- Original Question: %s
- SQL Query Used: %s
- Visualization Type: %s
- Analysis Steps: %s

**Data Summary:**
- Total Records: %d
- Columns: %s
- Data Types: %s
- Key Statistics: %s

**Raw Data Sample (first 5 rows):**
%s

**Task:**
Create a comprehensive but accessible summary that includes:
1. **Key Findings**: The most important insights from this data
2. **Trends & Patterns**: Notable trends, patterns, or relationships
3. **Extremes & Anomalies**: Highest/lowest values, outliers, or unusual patterns
4. **Business Context**: What these findings might mean in practical terms
5. **Recommendations**: Actionable insights based on the data

**Guidelines:**
- Use plain language that non-technical users can understand
- Focus on business impact and practical implications
- Highlight the most significant findings first
- Use specific numbers and percentages where relevant
- Avoid technical jargon and database terminology
- Keep the summary concise but comprehensive (3-5 paragraphs)

**Summary:**`

const comparisonPrompt = `
You are a data analyst comparing multiple datasets for non-technical users.

**Comparison Context:**
%s

**Datasets Being Compared:**
%s

**Task:**
Create a comparative analysis that highlights:
1. **Key Differences**: Major differences between the datasets
2. **Similarities**: Common patterns or characteristics
3. **Relative Performance**: Which dataset performs better in key metrics
4. **Trends**: How the datasets compare over time or categories
5. **Insights**: What these differences mean in practical terms

Use plain language and focus on actionable insights.

**Comparative Summary:**`

const trendPrompt = `
You are a data analyst specializing in trend analysis for non-technical audiences.

**Time Series Data:**
- Date Column: %s
- Value Column: %s
- Data Points: %d
- Time Period: %s to %s

**Trend Analysis:**
- Overall Trend: %s
- Trend Strength: %s
- Average Change: %.2f
- Volatility: %s

**Key Statistics:**
- Starting Value: %s
- Ending Value: %s
- Highest Value: %s
- Lowest Value: %s
- Total Change: %s%%

**Context:**
%s

**Task:**
Create a trend analysis summary that explains:
1. **Overall Direction**: Is the trend increasing, decreasing, or stable?
2. **Trend Strength**: How consistent is the trend?
3. **Key Turning Points**: When did significant changes occur?
4. **Volatility**: How much variation exists in the data?
5. **Future Implications**: What might this trend suggest going forward?

Use clear language and provide actionable insights.

**Trend Analysis:**`
